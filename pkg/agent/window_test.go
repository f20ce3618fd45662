package agent

import (
	"strings"
	"testing"

	"github.com/dietbuddy/dietbuddy/pkg/store"
)

func historyOf(contents ...string) []store.Message {
	out := make([]store.Message, 0, len(contents))
	role := store.RoleUser
	for i, c := range contents {
		out = append(out, store.Message{ID: int64(i + 1), Role: role, Content: c})
		if role == store.RoleUser {
			role = store.RoleAssistant
		} else {
			role = store.RoleUser
		}
	}
	return out
}

func TestBuildWindow_NoBudgetKeepsEverything(t *testing.T) {
	history := historyOf("one", "two", "three")
	msgs := buildWindow("system prompt", history, 0)

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "system prompt" {
		t.Errorf("first message should be the system prompt, got %+v", msgs[0])
	}
	if msgs[1].Content != "one" || msgs[3].Content != "three" {
		t.Errorf("history should render oldest first: %+v", msgs)
	}
	if msgs[1].Role != "user" || msgs[2].Role != "assistant" {
		t.Errorf("roles should carry over from the log: %+v", msgs)
	}
}

func TestBuildWindow_BudgetDropsOldestFirst(t *testing.T) {
	history := historyOf(
		strings.Repeat("a", 100),
		strings.Repeat("b", 100),
		strings.Repeat("c", 100),
	)
	// System (10) plus the two newest (200) fits in 250; adding the
	// oldest would not.
	msgs := buildWindow(strings.Repeat("s", 10), history, 250)

	if len(msgs) != 3 {
		t.Fatalf("expected system plus 2 newest, got %d messages", len(msgs))
	}
	if !strings.HasPrefix(msgs[1].Content, "b") {
		t.Errorf("oldest entry should have been dropped, window starts with %q", msgs[1].Content[:1])
	}
	if !strings.HasPrefix(msgs[2].Content, "c") {
		t.Errorf("newest entry must close the window, got %q", msgs[2].Content[:1])
	}
}

func TestBuildWindow_NewestSurvivesEvenOverBudget(t *testing.T) {
	history := historyOf(strings.Repeat("x", 50), strings.Repeat("y", 5000))
	msgs := buildWindow("sys", history, 100)

	if len(msgs) != 2 {
		t.Fatalf("expected system plus the newest message, got %d", len(msgs))
	}
	if len(msgs[1].Content) != 5000 {
		t.Errorf("newest message must never be truncated or dropped, got %d chars", len(msgs[1].Content))
	}
}

func TestBuildWindow_EmptyHistory(t *testing.T) {
	msgs := buildWindow("sys", nil, 1000)
	if len(msgs) != 1 || msgs[0].Role != "system" {
		t.Fatalf("empty history should yield just the system message, got %+v", msgs)
	}
}
