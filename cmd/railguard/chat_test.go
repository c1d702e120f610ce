package main

import (
	"strings"
	"testing"

	testhelpers "mercator-hq/railguard/internal/providers"
)

func TestChat_History(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.Enqueue(testhelpers.ChatPath,
		testhelpers.OK(testhelpers.MockChatCompletion("Preheat the oven to 180°C.", nimModelName)),
		testhelpers.OK(testhelpers.MockChatCompletion("Bake for 30 minutes.", nimModelName)),
	)

	input := strings.NewReader("How do I bake a cake?\n\nWho should win the election?\nAnd then?\nexit\nnever sent\n")
	stdout, stderr, err := executeCommand(t, input, "chat", "--config", "../../configs/topical", "--nim", "--nim-url", mock.URL()+"/v1")
	if err != nil {
		t.Fatalf("chat failed: %v\n%s", err, stderr)
	}

	for _, want := range []string{
		`Chatting with bundle "topical"`,
		"Assistant: Preheat the oven to 180°C.",
		"I can't discuss politics",
		"Assistant: Bake for 30 minutes.",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
	if got := mock.RequestCountFor(testhelpers.ChatPath); got != 2 {
		t.Fatalf("model called %d times, want 2", got)
	}

	body, err := mock.LastJSON()
	if err != nil {
		t.Fatal(err)
	}
	messages, _ := body["messages"].([]any)
	var contents []string
	for _, m := range messages {
		msg, _ := m.(map[string]any)
		content, _ := msg["content"].(string)
		contents = append(contents, content)
	}
	joined := strings.Join(contents, "|")
	if !strings.Contains(joined, "How do I bake a cake?|Preheat the oven to 180°C.|And then?") {
		t.Errorf("history not carried: %q", joined)
	}
	if strings.Contains(joined, "election") {
		t.Errorf("blocked turn leaked into history: %q", joined)
	}
}
