package conversation

import (
	"errors"
	"fmt"
)

// Role identifies who produced a turn.
type Role string

const (
	// RoleSystem is the optional leading instruction turn.
	RoleSystem Role = "system"

	// RoleUser is a turn written by the end user.
	RoleUser Role = "user"

	// RoleAssistant is a turn produced by the model.
	RoleAssistant Role = "assistant"

	// RoleAction is a synthetic turn carrying the result of an action call
	// requested by the preceding assistant turn.
	RoleAction Role = "action"
)

// ErrInvalidSequence is returned when a turn would break the role
// alternation invariant.
var ErrInvalidSequence = errors.New("invalid conversation sequence")

// ActionRef records an action call requested by an assistant turn.
type ActionRef struct {
	// ID correlates the request with its action turn.
	ID string `json:"id"`

	// Name is the registered action name.
	Name string `json:"name"`

	// Arguments are the decoded call arguments.
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Turn is a single entry in a conversation.
type Turn struct {
	// Role identifies the producer of the turn.
	Role Role `json:"role"`

	// Content is the turn text.
	Content string `json:"content"`

	// Name is the action name for action turns.
	Name string `json:"name,omitempty"`

	// CallID links an action turn to the ActionRef that requested it.
	CallID string `json:"call_id,omitempty"`

	// ActionCalls lists the calls requested by an assistant turn.
	ActionCalls []ActionRef `json:"action_calls,omitempty"`

	// Metadata holds optional structured data attached by the caller.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SequenceError describes where a conversation broke the alternation rule.
type SequenceError struct {
	// Index is the position of the offending turn.
	Index int

	// Previous is the role of the turn before it ("" when it is the first).
	Previous Role

	// Next is the role that was rejected.
	Next Role
}

// Error implements the error interface.
func (e *SequenceError) Error() string {
	if e.Previous == "" {
		return fmt.Sprintf("invalid conversation sequence: turn %d cannot start a conversation with role %q", e.Index, e.Next)
	}
	return fmt.Sprintf("invalid conversation sequence: turn %d with role %q cannot follow role %q", e.Index, e.Next, e.Previous)
}

// Is reports whether target is ErrInvalidSequence.
func (e *SequenceError) Is(target error) bool {
	return target == ErrInvalidSequence
}

// Conversation is an append-only sequence of turns.
//
// The zero value is an empty conversation ready to use. A Conversation is
// not safe for concurrent mutation; the orchestrator gives each request its
// own copy.
type Conversation struct {
	turns []Turn
}

// New builds a conversation from turns, validating each transition.
func New(turns ...Turn) (*Conversation, error) {
	c := &Conversation{turns: make([]Turn, 0, len(turns))}
	for _, t := range turns {
		if err := c.Append(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append adds a turn to the end of the conversation.
func (c *Conversation) Append(t Turn) error {
	var prev Role
	if n := len(c.turns); n > 0 {
		prev = c.turns[n-1].Role
	}

	if !canFollow(prev, t.Role) {
		return &SequenceError{Index: len(c.turns), Previous: prev, Next: t.Role}
	}
	if t.Role == RoleAction && !c.pendingCall(t.CallID) {
		return &SequenceError{Index: len(c.turns), Previous: prev, Next: t.Role}
	}

	c.turns = append(c.turns, t)
	return nil
}

// canFollow encodes the alternation rule: an optional leading system turn,
// then user and assistant alternate. Action turns sit between an assistant
// turn that requested them and the next assistant turn.
func canFollow(prev, next Role) bool {
	switch prev {
	case "":
		return next == RoleSystem || next == RoleUser
	case RoleSystem:
		return next == RoleUser
	case RoleUser:
		return next == RoleAssistant
	case RoleAssistant:
		return next == RoleUser || next == RoleAction
	case RoleAction:
		return next == RoleAction || next == RoleAssistant
	default:
		return false
	}
}

// pendingCall reports whether the most recent assistant turn requested a
// call that matches callID. An empty callID matches any requested call.
func (c *Conversation) pendingCall(callID string) bool {
	for i := len(c.turns) - 1; i >= 0; i-- {
		t := c.turns[i]
		if t.Role != RoleAssistant {
			continue
		}
		if len(t.ActionCalls) == 0 {
			return false
		}
		if callID == "" {
			return true
		}
		for _, ref := range t.ActionCalls {
			if ref.ID == callID {
				return true
			}
		}
		return false
	}
	return false
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Turns returns a copy of the turns in order.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Last returns the final turn.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// LastUser returns the most recent user turn and its index.
func (c *Conversation) LastUser() (Turn, int, bool) {
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == RoleUser {
			return c.turns[i], i, true
		}
	}
	return Turn{}, -1, false
}

// Clone returns an independent copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	return &Conversation{turns: c.Turns()}
}

// WithUserContent returns a new conversation identical to c except that the
// most recent user turn carries content. The receiver is left untouched.
func (c *Conversation) WithUserContent(content string) (*Conversation, error) {
	_, idx, ok := c.LastUser()
	if !ok {
		return nil, fmt.Errorf("%w: no user turn to rewrite", ErrInvalidSequence)
	}
	out := c.Clone()
	out.turns[idx].Content = content
	return out, nil
}

// Validate checks a raw sequence of turns without building a conversation.
func Validate(turns []Turn) error {
	_, err := New(turns...)
	return err
}
