package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/armon/go-radix"
	"gonum.org/v1/gonum/floats"
)

// Entry is a single trusted claim about a topic.
type Entry struct {
	// Topic is the key the claim is filed under (e.g. "nvidia").
	Topic string `yaml:"topic" json:"topic"`

	// Claim is the trusted statement.
	Claim string `yaml:"claim" json:"claim"`

	// Confidence is how much the claim is trusted, from 0.0 to 1.0.
	Confidence float64 `yaml:"confidence" json:"confidence"`
}

// maxTopicWords bounds the phrase length tried when matching topic keys.
const maxTopicWords = 4

// Store holds knowledge entries keyed by topic. It is immutable once built
// and safe for concurrent readers.
type Store struct {
	byTopic map[string][]Entry
	index   *radix.Tree
	count   int
}

// NewStore builds a store from entries. Topics are normalized and entries
// within a topic are ordered by descending confidence.
func NewStore(entries []Entry) (*Store, error) {
	s := &Store{
		byTopic: make(map[string][]Entry),
		index:   radix.New(),
	}

	for i, e := range entries {
		topic := NormalizeTopic(e.Topic)
		if topic == "" {
			return nil, fmt.Errorf("knowledge entry %d: topic is required", i)
		}
		if strings.TrimSpace(e.Claim) == "" {
			return nil, fmt.Errorf("knowledge entry %d (%s): claim is required", i, topic)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("knowledge entry %d (%s): confidence %.2f outside [0, 1]", i, topic, e.Confidence)
		}

		e.Topic = topic
		s.byTopic[topic] = append(s.byTopic[topic], e)
		s.index.Insert(topic, struct{}{})
		s.count++
	}

	for _, list := range s.byTopic {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Confidence > list[j].Confidence
		})
	}

	return s, nil
}

// Lookup returns the entries for topic ordered by descending confidence.
// An unknown topic yields an empty slice.
func (s *Store) Lookup(topic string) []Entry {
	list := s.byTopic[NormalizeTopic(topic)]
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

// Topics returns all topic keys in lexical order.
func (s *Store) Topics() []string {
	topics := make([]string, 0, len(s.byTopic))
	s.index.Walk(func(key string, _ interface{}) bool {
		topics = append(topics, key)
		return false
	})
	return topics
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return s.count
}

// NearestTopic finds the topic key that best matches text. Phrases of up to
// four words are tried against the radix index; the longest matching key
// wins, ties going to the earliest occurrence. A key matches a phrase when
// the phrase equals it or extends it with a plural or possessive suffix.
func (s *Store) NearestTopic(text string) (string, bool) {
	tokens := Tokenize(text)
	best := ""

	for i := range tokens {
		for n := 1; n <= maxTopicWords && i+n <= len(tokens); n++ {
			phrase := strings.Join(tokens[i:i+n], " ")
			key, _, ok := s.index.LongestPrefix(phrase)
			if !ok || !wordBoundary(phrase, key) {
				continue
			}
			if len(key) > len(best) {
				best = key
			}
		}
	}

	return best, best != ""
}

// wordBoundary reports whether key covers phrase up to a short suffix such
// as "s" or "es", so "gpus" matches "gpu" but "nvidiaish" does not match
// "nvidia".
func wordBoundary(phrase, key string) bool {
	rest := phrase[len(key):]
	switch rest {
	case "", "s", "es":
		return true
	}
	return strings.HasPrefix(rest, " ")
}

// Similarity returns the cosine similarity of the content-word count
// vectors of a and b, in [0, 1].
func Similarity(a, b string) float64 {
	ta, tb := contentTokens(a), contentTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	vocab := make(map[string]int)
	for _, t := range ta {
		if _, ok := vocab[t]; !ok {
			vocab[t] = len(vocab)
		}
	}
	for _, t := range tb {
		if _, ok := vocab[t]; !ok {
			vocab[t] = len(vocab)
		}
	}

	va := make([]float64, len(vocab))
	vb := make([]float64, len(vocab))
	for _, t := range ta {
		va[vocab[t]]++
	}
	for _, t := range tb {
		vb[vocab[t]]++
	}

	denom := floats.Norm(va, 2) * floats.Norm(vb, 2)
	if denom == 0 {
		return 0
	}
	return floats.Dot(va, vb) / denom
}

// Similarity scores a against b. It is a method so the store satisfies the
// fact verifier's knowledge interface.
func (s *Store) Similarity(a, b string) float64 {
	return Similarity(a, b)
}
