package policy

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/storage/bolt"
	"github.com/rs/zerolog"
)

const (
	testPackage = "com.example.game"
	testToday   = "2024-04-10"
	hour        = int64(time.Hour / time.Millisecond)
)

func openTestStore(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "policy.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func seedUsage(t *testing.T, store storage.Store, date string, millis int64) {
	t.Helper()
	err := store.Usage().UpsertDaily(context.Background(), storage.UsageRecord{
		Package: testPackage, AppName: "Game", Date: date, TotalTimeMillis: millis,
	})
	if err != nil {
		t.Fatalf("seed usage: %v", err)
	}
}

func seedLimit(t *testing.T, store storage.Store, limit int64, enabled bool) {
	t.Helper()
	err := store.Limits().Upsert(context.Background(), storage.LimitPolicy{
		Package: testPackage, AppName: "Game", DailyLimitMillis: limit, Enabled: enabled,
	})
	if err != nil {
		t.Fatalf("seed limit: %v", err)
	}
}

func seedBlock(t *testing.T, store storage.Store, enabled bool) {
	t.Helper()
	err := store.Blocks().Upsert(context.Background(), storage.BlockPolicy{
		Package: testPackage, AppName: "Game", Enabled: enabled,
	})
	if err != nil {
		t.Fatalf("seed block: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		facts         Facts
		wantAction    Action
		wantReason    string
		wantRemaining time.Duration
	}{
		{"no policy", Facts{}, ActionAllow, "", 0},
		{"blocked", Facts{Blocked: true}, ActionBlock, ReasonBlocked, 0},
		{"blocked wins over under-limit", Facts{Blocked: true, HasLimit: true, LimitMillis: hour, UsedMillis: 1}, ActionBlock, ReasonBlocked, 0},
		{"at limit", Facts{HasLimit: true, LimitMillis: hour, UsedMillis: hour}, ActionBlock, ReasonLimitReached, 0},
		{"over limit", Facts{HasLimit: true, LimitMillis: hour, UsedMillis: 2 * hour}, ActionBlock, ReasonLimitReached, 0},
		{"exactly 90 percent", Facts{HasLimit: true, LimitMillis: 100, UsedMillis: 90}, ActionWarn, ReasonNearLimit, 10 * time.Millisecond},
		{"just under 90 percent", Facts{HasLimit: true, LimitMillis: 100, UsedMillis: 89}, ActionAllow, "", 0},
		{"near limit already warned", Facts{HasLimit: true, LimitMillis: 100, UsedMillis: 95, Warned: true}, ActionAllow, "", 0},
		{"over limit already warned", Facts{HasLimit: true, LimitMillis: 100, UsedMillis: 100, Warned: true}, ActionBlock, ReasonLimitReached, 0},
		{"55 of 60 minutes", Facts{HasLimit: true, LimitMillis: hour, UsedMillis: 55 * 60_000}, ActionWarn, ReasonNearLimit, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.facts)
			if got.Action != tt.wantAction {
				t.Errorf("classify() action = %v, want %v", got.Action, tt.wantAction)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("classify() reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.Remaining != tt.wantRemaining {
				t.Errorf("classify() remaining = %v, want %v", got.Remaining, tt.wantRemaining)
			}
		})
	}
}

func TestEngine_NoPolicyAllows(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	engine := NewEngine(store, nil, zerolog.Nop())
	seedUsage(t, store, testToday, 10*hour)

	decision, _, err := engine.Evaluate(context.Background(), testPackage, testToday, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Action != ActionAllow {
		t.Errorf("Evaluate() action = %v, want ALLOW", decision.Action)
	}
}

func TestEngine_BlockPrecedence(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	seedBlock(t, store, true)
	seedLimit(t, store, hour, true)
	seedUsage(t, store, testToday, 10*60_000)

	engine := NewEngine(store, nil, zerolog.Nop())
	decision, facts, err := engine.Evaluate(context.Background(), testPackage, testToday, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Action != ActionBlock || decision.Reason != ReasonBlocked {
		t.Errorf("Evaluate() = %+v, want block with %q", decision, ReasonBlocked)
	}
	if facts.UsedMillis != 10*60_000 {
		t.Errorf("facts.UsedMillis = %d, want %d", facts.UsedMillis, 10*60_000)
	}
}

func TestEngine_DisabledPoliciesIgnored(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	seedBlock(t, store, false)
	seedLimit(t, store, hour, false)
	seedUsage(t, store, testToday, 2*hour)

	engine := NewEngine(store, nil, zerolog.Nop())
	decision, _, err := engine.Evaluate(context.Background(), testPackage, testToday, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Action != ActionAllow {
		t.Errorf("Evaluate() action = %v, want ALLOW", decision.Action)
	}
}

func TestEngine_OnlyTodayCounts(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	seedLimit(t, store, hour, true)
	seedUsage(t, store, "2024-04-09", 5*hour)
	seedUsage(t, store, testToday, 30*60_000)

	engine := NewEngine(store, nil, zerolog.Nop())
	decision, facts, err := engine.Evaluate(context.Background(), testPackage, testToday, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if facts.UsedMillis != 30*60_000 {
		t.Errorf("facts.UsedMillis = %d, want %d", facts.UsedMillis, 30*60_000)
	}
	if decision.Action != ActionAllow {
		t.Errorf("Evaluate() action = %v, want ALLOW", decision.Action)
	}
}

func TestEngine_MalformedPolicyTreatedAsAbsent(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	seedUsage(t, store, testToday, 2*hour)

	engine := NewEngine(&malformedStore{Store: store}, nil, zerolog.Nop())
	decision, _, err := engine.Evaluate(context.Background(), testPackage, testToday, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Action != ActionAllow {
		t.Errorf("Evaluate() action = %v, want ALLOW", decision.Action)
	}
}

func TestEngine_StoreErrorPropagates(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	engine := NewEngine(&brokenStore{Store: store}, nil, zerolog.Nop())
	_, _, err := engine.Evaluate(context.Background(), testPackage, testToday, false)
	if err == nil {
		t.Fatal("Evaluate() expected error from broken block store")
	}
}

func TestEngine_EvaluatorFailureFallsBack(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	seedBlock(t, store, true)

	engine := NewEngine(store, failingEvaluator{}, zerolog.Nop())
	decision, _, err := engine.Evaluate(context.Background(), testPackage, testToday, false)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Action != ActionBlock {
		t.Errorf("Evaluate() action = %v, want BLOCK from fallback", decision.Action)
	}
}

type failingEvaluator struct{}

func (failingEvaluator) Decide(context.Context, Facts) (Decision, error) {
	return Decision{}, errors.New("policy unavailable")
}

// malformedStore returns ErrMalformed for every policy lookup.
type malformedStore struct {
	*bolt.Store
}

func (m *malformedStore) Blocks() storage.BlockStore {
	return malformedBlocks{m.Store.Blocks()}
}

func (m *malformedStore) Limits() storage.LimitStore {
	return malformedLimits{m.Store.Limits()}
}

type malformedBlocks struct{ storage.BlockStore }

func (malformedBlocks) Get(context.Context, string) (*storage.BlockPolicy, error) {
	return nil, storage.ErrMalformed
}

type malformedLimits struct{ storage.LimitStore }

func (malformedLimits) Get(context.Context, string) (*storage.LimitPolicy, error) {
	return nil, storage.ErrMalformed
}

// brokenStore fails block lookups with a transient error.
type brokenStore struct {
	*bolt.Store
}

func (b *brokenStore) Blocks() storage.BlockStore {
	return brokenBlocks{b.Store.Blocks()}
}

type brokenBlocks struct{ storage.BlockStore }

func (brokenBlocks) Get(context.Context, string) (*storage.BlockPolicy, error) {
	return nil, errors.New("disk on fire")
}
