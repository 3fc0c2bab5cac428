package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/rs/zerolog"
)

// Reloader is implemented by evaluators whose rules can be reloaded at runtime.
type Reloader interface {
	Reload() error
}

// Engine handles policy evaluation by gathering facts and calling an Evaluator
type Engine struct {
	blocks    storage.BlockStore
	limits    storage.LimitStore
	usage     storage.UsageStore
	evaluator Evaluator
	logger    zerolog.Logger
}

// NewEngine creates a new fact-based policy engine. A nil evaluator selects Builtin.
func NewEngine(store storage.Store, evaluator Evaluator, logger zerolog.Logger) *Engine {
	if evaluator == nil {
		evaluator = Builtin{}
	}
	return &Engine{
		blocks:    store.Blocks(),
		limits:    store.Limits(),
		usage:     store.Usage(),
		evaluator: evaluator,
		logger:    logger.With().Str("component", "policy").Logger(),
	}
}

// Evaluate decides what to do about pkg being in the foreground on day today.
// Store failures are returned so the caller can skip the tick; evaluator
// failures fall back to the builtin classifier.
func (e *Engine) Evaluate(ctx context.Context, pkg, today string, warned bool) (Decision, Facts, error) {
	facts, err := e.GatherFacts(ctx, pkg, today)
	if err != nil {
		return Decision{}, facts, err
	}
	facts.Warned = warned

	decision, err := e.evaluator.Decide(ctx, facts)
	if err != nil {
		e.logger.Error().Err(err).Str("package", pkg).Msg("Policy evaluation failed, falling back to builtin")
		decision = classify(facts)
	}
	return decision, facts, nil
}

// GatherFacts reads the block, limit and today's usage for pkg.
// Missing or malformed policy rows count as no policy.
func (e *Engine) GatherFacts(ctx context.Context, pkg, today string) (Facts, error) {
	facts := Facts{Package: pkg}

	block, err := e.blocks.Get(ctx, pkg)
	switch {
	case err == nil:
		facts.Blocked = block.Enabled
		facts.AppName = block.AppName
	case isNoPolicy(err):
		if errors.Is(err, storage.ErrMalformed) {
			e.logger.Warn().Err(err).Str("package", pkg).Msg("Ignoring malformed block policy")
		}
	default:
		return facts, fmt.Errorf("get block policy: %w", err)
	}

	limit, err := e.limits.Get(ctx, pkg)
	switch {
	case err == nil:
		if limit.Enabled && limit.DailyLimitMillis > 0 {
			facts.HasLimit = true
			facts.LimitMillis = limit.DailyLimitMillis
			if facts.AppName == "" {
				facts.AppName = limit.AppName
			}
		}
	case isNoPolicy(err):
		if errors.Is(err, storage.ErrMalformed) {
			e.logger.Warn().Err(err).Str("package", pkg).Msg("Ignoring malformed limit policy")
		}
	default:
		return facts, fmt.Errorf("get limit policy: %w", err)
	}

	if facts.HasLimit {
		used, err := e.UsedToday(ctx, pkg, today)
		if err != nil {
			return facts, err
		}
		facts.UsedMillis = used
	}

	return facts, nil
}

// UsedToday sums the stored usage of pkg for today.
func (e *Engine) UsedToday(ctx context.Context, pkg, today string) (int64, error) {
	records, err := e.usage.GetForApp(ctx, pkg, today)
	if err != nil {
		return 0, fmt.Errorf("get usage for %s: %w", pkg, err)
	}
	var used int64
	for _, r := range records {
		if r.Date == today {
			used += r.TotalTimeMillis
		}
	}
	return used, nil
}

// Reload reloads the evaluator's rules if it supports reloading
func (e *Engine) Reload() error {
	r, ok := e.evaluator.(Reloader)
	if !ok {
		e.logger.Info().Msg("Policy reload requested, builtin rules have nothing to reload")
		return nil
	}
	return r.Reload()
}

func isNoPolicy(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrMalformed)
}
