// Package conversation models the ordered turns of a guarded chat.
//
// A Conversation only grows: turns are appended and never edited in place.
// Operations that need a modified history, such as replacing a sanitized user
// message, return a new Conversation.
//
// # Alternation
//
// A conversation may open with a single system turn. After that, user and
// assistant turns alternate. When an assistant turn requests actions, one
// action turn per request may follow before the next assistant turn:
//
//	system? user assistant(calls) action action assistant user ...
//
// Append returns a *SequenceError, which matches ErrInvalidSequence, when a
// turn would break this rule.
package conversation
