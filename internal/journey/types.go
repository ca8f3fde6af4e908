package journey

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how a Journey is synthesized or derived.
type Strategy int

const (
	RuleBased Strategy = iota
	Transformer
)

func (s Strategy) String() string {
	switch s {
	case RuleBased:
		return "rule_based"
	case Transformer:
		return "transformer"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Label is the human-facing name shown on the dashboard.
func (s Strategy) Label() string {
	switch s {
	case RuleBased:
		return "Rule-Based"
	case Transformer:
		return "Transformer"
	default:
		return s.String()
	}
}

// MarshalText encodes the strategy as its snake_case name.
func (s Strategy) MarshalText() ([]byte, error) {
	if s != RuleBased && s != Transformer {
		return nil, fmt.Errorf("unknown strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts any form ParseStrategy accepts.
func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStrategy maps a user-supplied name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rule_based", "rule-based", "rule", "rules":
		return RuleBased, nil
	case "transformer", "model":
		return Transformer, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want rule_based or transformer)", name)
	}
}

// Strategies lists every strategy in display order.
func Strategies() []Strategy {
	return []Strategy{RuleBased, Transformer}
}

// InteractionRow is one real historical event for a customer.
// An empty Offer or Channel means the source had no value.
type InteractionRow struct {
	Date      time.Time
	Offer     string
	Channel   string
	Converted bool
}

// Step is a single position in a Journey.
type Step struct {
	CustomerKey int64     `json:"customer_key"`
	Date        time.Time `json:"date"`
	Offer       string    `json:"offer"`
	Channel     string    `json:"channel"`
	Converted   bool      `json:"converted"`
}

// Journey is the ordered sequence of steps for one customer under one strategy.
type Journey struct {
	Strategy  Strategy `json:"strategy"`
	Synthetic bool     `json:"synthetic"`
	Steps     []Step   `json:"steps"`
}

func (j Journey) Len() int { return len(j.Steps) }

// Conversions counts the converted steps.
func (j Journey) Conversions() int {
	n := 0
	for _, s := range j.Steps {
		if s.Converted {
			n++
		}
	}
	return n
}

// At returns the step at position i, or false when i is past the end.
func (j Journey) At(i int) (Step, bool) {
	if i < 0 || i >= len(j.Steps) {
		return Step{}, false
	}
	return j.Steps[i], true
}
