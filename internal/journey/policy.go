package journey

import (
	"errors"
	"fmt"
	"time"
)

// DemoPolicy holds every literal the Builder uses: the synthetic demo content
// shown when a customer has too little history, and the labels and thinning
// rule applied to derived journeys.
type DemoPolicy struct {
	// MinHistory is the number of real rows required to derive a journey
	// instead of synthesizing one.
	MinHistory int

	Anchor      time.Time
	SpacingDays int
	Length      int

	RuleOffer     string
	RuleChannel   string
	RuleConverted []int

	TransformerOffers    []string
	TransformerChannels  []string
	TransformerConverted []int

	// ThinningStride keeps a derived rule-based conversion only at positions
	// that are a multiple of the stride.
	ThinningStride int

	UnknownOffer   string
	UnknownChannel string
	FallbackOffer  string
}

// DefaultPolicy returns the demo content used by the dashboard.
func DefaultPolicy() DemoPolicy {
	return DemoPolicy{
		MinHistory:  3,
		Anchor:      time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		SpacingDays: 3,
		Length:      8,

		RuleOffer:     "Top-Up Loan Offer",
		RuleChannel:   "Static Carousel",
		RuleConverted: []int{4},

		TransformerOffers: []string{
			"Welcome Bonus Checking",
			"Credit Builder Loan",
			"Personal Line of Credit",
			"Home Equity Loan",
			"Top-Up Loan Special",
			"Debt Consolidation",
			"Premium Credit Card",
			"Investment Account",
		},
		TransformerChannels: []string{
			"Mobile App Login",
			"Email Campaign",
			"Web Browse",
			"Direct Mail",
			"Mobile Push",
			"Call Center",
			"Branch Visit",
			"Mobile App",
		},
		TransformerConverted: []int{1, 3, 4, 6},

		ThinningStride: 3,

		UnknownOffer:   "Unknown Offer",
		UnknownChannel: "Unknown Service",
		FallbackOffer:  "Top-Up Loan",
	}
}

// Validate reports the first inconsistency in the policy.
func (p DemoPolicy) Validate() error {
	if p.MinHistory < 1 {
		return errors.New("min history must be at least 1")
	}
	if p.Length < 1 {
		return errors.New("synthetic length must be at least 1")
	}
	if p.SpacingDays < 0 {
		return errors.New("spacing must not be negative")
	}
	if p.ThinningStride < 1 {
		return errors.New("thinning stride must be at least 1")
	}
	if len(p.TransformerOffers) != p.Length {
		return fmt.Errorf("transformer offers: got %d labels, want %d", len(p.TransformerOffers), p.Length)
	}
	if len(p.TransformerChannels) != p.Length {
		return fmt.Errorf("transformer channels: got %d labels, want %d", len(p.TransformerChannels), p.Length)
	}
	if err := checkPositions("rule converted", p.RuleConverted, p.Length); err != nil {
		return err
	}
	return checkPositions("transformer converted", p.TransformerConverted, p.Length)
}

func checkPositions(name string, positions []int, length int) error {
	seen := make(map[int]bool, len(positions))
	for _, pos := range positions {
		if pos < 0 || pos >= length {
			return fmt.Errorf("%s: position %d outside [0,%d)", name, pos, length)
		}
		if seen[pos] {
			return fmt.Errorf("%s: duplicate position %d", name, pos)
		}
		seen[pos] = true
	}
	return nil
}

// syntheticDate returns the calendar date of synthetic step i.
func (p DemoPolicy) syntheticDate(i int) time.Time {
	return p.Anchor.AddDate(0, 0, i*p.SpacingDays)
}

func positionSet(positions []int) map[int]bool {
	set := make(map[int]bool, len(positions))
	for _, pos := range positions {
		set[pos] = true
	}
	return set
}
