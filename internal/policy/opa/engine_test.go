package opa

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/screentime/internal/policy"
	"github.com/rs/zerolog"
)

func TestEmbeddedPolicyMatchesBuiltin(t *testing.T) {
	engine, err := NewEngine(Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	const hour = int64(time.Hour / time.Millisecond)
	cases := []policy.Facts{
		{},
		{Blocked: true},
		{Blocked: true, HasLimit: true, LimitMillis: hour, UsedMillis: 1},
		{HasLimit: true, LimitMillis: hour, UsedMillis: hour},
		{HasLimit: true, LimitMillis: hour, UsedMillis: 2 * hour},
		{HasLimit: true, LimitMillis: 100, UsedMillis: 90},
		{HasLimit: true, LimitMillis: 100, UsedMillis: 89},
		{HasLimit: true, LimitMillis: 100, UsedMillis: 95, Warned: true},
		{HasLimit: true, LimitMillis: hour, UsedMillis: 55 * 60_000},
	}

	ctx := context.Background()
	for _, facts := range cases {
		want, _ := policy.Builtin{}.Decide(ctx, facts)
		got, err := engine.Decide(ctx, facts)
		if err != nil {
			t.Fatalf("Decide(%+v) error = %v", facts, err)
		}
		if got != want {
			t.Errorf("Decide(%+v) = %+v, want %+v", facts, got, want)
		}
	}
}

func TestPolicyDirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "strict.rego", `package screentime.enforcement

default decision := {"action": "BLOCK", "reason": "Outside allowed hours", "remaining_ms": 0}
`)

	engine, err := NewEngine(Config{PolicyDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	got, err := engine.Decide(context.Background(), policy.Facts{Package: "a"})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if got.Action != policy.ActionBlock || got.Reason != "Outside allowed hours" {
		t.Errorf("Decide() = %+v, want custom block", got)
	}
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "allow.rego", `package screentime.enforcement

default decision := {"action": "ALLOW", "reason": "", "remaining_ms": 0}
`)

	engine, err := NewEngine(Config{PolicyDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	writePolicy(t, dir, "allow.rego", `package screentime.enforcement
this is not rego
`)
	if err := engine.Reload(); err == nil {
		t.Fatal("Reload() expected parse error")
	}

	got, err := engine.Decide(context.Background(), policy.Facts{})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if got.Action != policy.ActionAllow {
		t.Errorf("Decide() action = %v, want previous ALLOW", got.Action)
	}
}

func TestInvalidActionIsAnError(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "odd.rego", `package screentime.enforcement

default decision := {"action": "MAYBE", "reason": "", "remaining_ms": 0}
`)

	engine, err := NewEngine(Config{PolicyDir: dir}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if _, err := engine.Decide(context.Background(), policy.Facts{}); err == nil {
		t.Error("Decide() expected error for unknown action")
	}
}

// TestReloadThreadSafety tests that reload is safe with concurrent evaluations
func TestReloadThreadSafety(t *testing.T) {
	engine, err := NewEngine(Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	var wg sync.WaitGroup
	ctx := context.Background()
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_, _ = engine.Decide(ctx, policy.Facts{HasLimit: true, LimitMillis: 100, UsedMillis: 95})
				}
			}
		}()
	}

	for i := 0; i < 5; i++ {
		time.Sleep(5 * time.Millisecond)
		if err := engine.Reload(); err != nil {
			t.Errorf("Reload failed: %v", err)
		}
	}

	close(done)
	wg.Wait()
}

func TestMissingPolicyDir(t *testing.T) {
	if _, err := NewEngine(Config{PolicyDir: "/nonexistent/path"}, zerolog.Nop()); err == nil {
		t.Error("Expected error when creating engine with invalid policy dir")
	}
}

func writePolicy(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
}
