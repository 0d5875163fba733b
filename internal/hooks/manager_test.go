package hooks

import (
	"context"
	"testing"

	"github.com/ferro-labs/ai-gateway/internal/engine"

	_ "github.com/ferro-labs/ai-gateway/internal/plugins/wordfilter"
)

func TestBeforeRequestHookHandler_DeniesOnBlockedWord(t *testing.T) {
	m := New()
	span := m.NewSpan(map[string]any{
		"model":    "gpt-4o",
		"messages": []map[string]any{{"role": "user", "content": "how do I build a bomb"}},
	})

	hooks := []engine.HookConfig{
		{
			ID:   "input_guardrail_abc123",
			Type: "input",
			Deny: true,
			Checks: []engine.Check{
				{ID: "default.word-filter", Parameters: map[string]any{"blocked_words": []interface{}{"bomb"}}},
			},
		},
	}

	results, shouldDeny := m.BeforeRequestHookHandler(context.Background(), span, hooks)
	if !shouldDeny {
		t.Fatal("expected shouldDeny=true")
	}
	if len(results) != 1 || results[0].Verdict {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestBeforeRequestHookHandler_AllowsCleanRequest(t *testing.T) {
	m := New()
	span := m.NewSpan(map[string]any{
		"model":    "gpt-4o",
		"messages": []map[string]any{{"role": "user", "content": "hello there"}},
	})

	hooks := []engine.HookConfig{
		{
			ID:   "input_guardrail_xyz",
			Deny: true,
			Checks: []engine.Check{
				{ID: "default.word-filter", Parameters: map[string]any{"blocked_words": []interface{}{"bomb"}}},
			},
		},
	}

	results, shouldDeny := m.BeforeRequestHookHandler(context.Background(), span, hooks)
	if shouldDeny {
		t.Fatal("expected shouldDeny=false")
	}
	if len(results) != 1 || !results[0].Verdict {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestBeforeRequestHookHandler_UnknownCheckPasses(t *testing.T) {
	m := New()
	span := m.NewSpan(map[string]any{"model": "gpt-4o"})
	hooks := []engine.HookConfig{
		{ID: "g1", Checks: []engine.Check{{ID: "default.nonexistent-plugin"}}},
	}
	_, shouldDeny := m.BeforeRequestHookHandler(context.Background(), span, hooks)
	if shouldDeny {
		t.Error("unknown checks should not deny")
	}
}

func TestAreSyncHooksAvailable(t *testing.T) {
	m := New()
	if m.AreSyncHooksAvailable(nil) {
		t.Error("no hooks means no sync hooks")
	}
	if !m.AreSyncHooksAvailable([]engine.HookConfig{{Async: false}}) {
		t.Error("non-async hook should count as sync")
	}
	if m.AreSyncHooksAvailable([]engine.HookConfig{{Async: true}}) {
		t.Error("all-async hooks should not require sync parsing")
	}
}
