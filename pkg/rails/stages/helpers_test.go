package stages

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mercator-hq/railguard/pkg/conversation"
	"mercator-hq/railguard/pkg/rails"
)

func userContext(t *testing.T, message string) *rails.TurnContext {
	t.Helper()
	conv, err := conversation.New(conversation.Turn{Role: conversation.RoleUser, Content: message})
	require.NoError(t, err)
	return rails.NewTurnContext("test-request", "test", conv)
}

func draftContext(t *testing.T, draft string) *rails.TurnContext {
	t.Helper()
	tc := userContext(t, "question")
	tc.Draft = draft
	return tc
}
