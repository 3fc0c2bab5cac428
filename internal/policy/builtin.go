package policy

import (
	"context"
	"time"
)

// Builtin is the default classifier.
//
// Precedence: an enabled block wins, then an exhausted limit, then a one-shot
// warning once usage reaches 90% of the limit.
type Builtin struct{}

func (Builtin) Decide(_ context.Context, f Facts) (Decision, error) {
	return classify(f), nil
}

func classify(f Facts) Decision {
	if f.Blocked {
		return Decision{Action: ActionBlock, Reason: ReasonBlocked}
	}
	if !f.HasLimit || f.LimitMillis <= 0 {
		return Decision{Action: ActionAllow}
	}
	if f.UsedMillis >= f.LimitMillis {
		return Decision{Action: ActionBlock, Reason: ReasonLimitReached}
	}
	// used >= 0.9 * limit, in integers
	if f.UsedMillis*10 >= f.LimitMillis*9 && !f.Warned {
		return Decision{
			Action:    ActionWarn,
			Reason:    ReasonNearLimit,
			Remaining: time.Duration(f.LimitMillis-f.UsedMillis) * time.Millisecond,
		}
	}
	return Decision{Action: ActionAllow}
}
