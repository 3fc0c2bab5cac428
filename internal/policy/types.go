package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action represents the enforcement decision for the foreground app
type Action string

const (
	ActionNone  Action = "NONE" // nothing in the foreground
	ActionAllow Action = "ALLOW"
	ActionWarn  Action = "WARN"
	ActionBlock Action = "BLOCK"
)

// UnmarshalJSON implements json.Unmarshaler to normalize action to uppercase.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := Action(strings.ToUpper(s))
	switch normalized {
	case ActionNone, ActionAllow, ActionWarn, ActionBlock:
		*a = normalized
		return nil
	default:
		return fmt.Errorf("invalid action: %s (must be NONE, ALLOW, WARN, or BLOCK)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure uppercase output.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

const (
	ReasonBlocked      = "This app is blocked"
	ReasonLimitReached = "Daily time limit reached"
	ReasonNearLimit    = "Approaching daily time limit"
)

// Facts are everything a decision depends on, gathered from the stores.
type Facts struct {
	Package     string `json:"package"`
	AppName     string `json:"app_name"`
	Blocked     bool   `json:"blocked"`
	HasLimit    bool   `json:"has_limit"`
	LimitMillis int64  `json:"limit_ms"`
	UsedMillis  int64  `json:"used_ms"`
	Warned      bool   `json:"warned"`
}

// Decision represents the result of policy evaluation
type Decision struct {
	Action    Action
	Reason    string
	Remaining time.Duration
}

// Evaluator classifies facts into a decision.
type Evaluator interface {
	Decide(ctx context.Context, facts Facts) (Decision, error)
}
