package journey

import (
	"sort"
)

// Builder turns a customer's interaction history into a Journey.
type Builder struct {
	policy DemoPolicy
}

// NewBuilder creates a Builder. The policy is validated up front so Build
// never has to fail.
func NewBuilder(policy DemoPolicy) (*Builder, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Builder{policy: policy}, nil
}

var defaultBuilder = &Builder{policy: DefaultPolicy()}

// Build derives a journey with the default demo policy.
func Build(history []InteractionRow, customerKey int64, strategy Strategy) Journey {
	return defaultBuilder.Build(history, customerKey, strategy)
}

// Policy returns the policy the builder was created with.
func (b *Builder) Policy() DemoPolicy { return b.policy }

// Build returns the journey for customerKey under strategy. Histories shorter
// than the policy minimum are replaced by fixed demo content; longer ones are
// copied in date order, and the rule-based strategy is flattened to a single
// offer on a static channel with thinned conversions.
func (b *Builder) Build(history []InteractionRow, customerKey int64, strategy Strategy) Journey {
	if len(history) < b.policy.MinHistory {
		return b.synthetic(customerKey, strategy)
	}
	return b.derived(history, customerKey, strategy)
}

func (b *Builder) synthetic(customerKey int64, strategy Strategy) Journey {
	p := b.policy
	steps := make([]Step, p.Length)

	var converted map[int]bool
	if strategy == RuleBased {
		converted = positionSet(p.RuleConverted)
	} else {
		converted = positionSet(p.TransformerConverted)
	}

	for i := range steps {
		step := Step{
			CustomerKey: customerKey,
			Date:        p.syntheticDate(i),
			Converted:   converted[i],
		}
		if strategy == RuleBased {
			step.Offer = p.RuleOffer
			step.Channel = p.RuleChannel
		} else {
			step.Offer = p.TransformerOffers[i]
			step.Channel = p.TransformerChannels[i]
		}
		steps[i] = step
	}

	return Journey{Strategy: strategy, Synthetic: true, Steps: steps}
}

func (b *Builder) derived(history []InteractionRow, customerKey int64, strategy Strategy) Journey {
	p := b.policy

	rows := make([]InteractionRow, len(history))
	copy(rows, history)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})

	steps := make([]Step, len(rows))
	for i, r := range rows {
		offer := r.Offer
		if offer == "" {
			offer = p.UnknownOffer
		}
		channel := r.Channel
		if channel == "" {
			channel = p.UnknownChannel
		}
		steps[i] = Step{
			CustomerKey: customerKey,
			Date:        r.Date,
			Offer:       offer,
			Channel:     channel,
			Converted:   r.Converted,
		}
	}

	if strategy == RuleBased {
		offer := modeOffer(steps)
		if offer == "" {
			offer = p.FallbackOffer
		}
		for i := range steps {
			steps[i].Offer = offer
			steps[i].Channel = p.RuleChannel
			steps[i].Converted = steps[i].Converted && i%p.ThinningStride == 0
		}
	}

	return Journey{Strategy: strategy, Steps: steps}
}

// modeOffer returns the most frequent offer label. Ties resolve to the
// lexicographically smallest label; an empty sequence has no mode.
func modeOffer(steps []Step) string {
	counts := make(map[string]int, len(steps))
	for _, s := range steps {
		counts[s.Offer]++
	}

	best, bestCount := "", 0
	for label, n := range counts {
		if n > bestCount || (n == bestCount && label < best) {
			best, bestCount = label, n
		}
	}
	return best
}
