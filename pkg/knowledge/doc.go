// Package knowledge provides the read-only fact store used by the fact
// verifier.
//
// Entries are filed under a normalized topic key and returned by Lookup in
// descending confidence order. NearestTopic maps free text to the best
// matching key through a radix index, and Similarity scores two statements by
// cosine similarity of their content words.
//
// Stores are built once, from inline entries, a YAML file or a SQLite
// database, and shared by every request:
//
//	store, err := knowledge.LoadYAML("configs/fact_checking/knowledge.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, e := range store.Lookup("nvidia") {
//	    fmt.Println(e.Claim, e.Confidence)
//	}
package knowledge
