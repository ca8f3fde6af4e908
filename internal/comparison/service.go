// Package comparison assembles the per-customer view of both recommender
// strategies: journeys, conversion comparison, step frames and timelines.
package comparison

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/offerjourney/internal/dataset"
	"github.com/kalambet/offerjourney/internal/journey"
	"github.com/kalambet/offerjourney/internal/metrics"
)

// Dataset is the read-only data access the Service needs.
// Implemented by dataset.Cache.
type Dataset interface {
	History(ctx context.Context, key int64) ([]journey.InteractionRow, error)
	Customer(ctx context.Context, key int64) (dataset.Customer, error)
	CustomerKeys(ctx context.Context) ([]int64, error)
}

// Service builds journeys for customers on demand. It holds no per-request
// state; every call rebuilds both journeys from the dataset.
type Service struct {
	data    Dataset
	builder *journey.Builder
	logger  *slog.Logger
}

// NewService creates a Service. A nil builder uses the default demo policy.
func NewService(data Dataset, builder *journey.Builder) *Service {
	if builder == nil {
		// DefaultPolicy always validates.
		builder, _ = journey.NewBuilder(journey.DefaultPolicy())
	}
	return &Service{data: data, builder: builder, logger: slog.Default()}
}

// Session is everything the dashboard shows for one customer.
type Session struct {
	Customer    dataset.Customer   `json:"customer"`
	Rule        journey.Journey    `json:"rule"`
	Transformer journey.Journey    `json:"transformer"`
	Comparison  journey.Comparison `json:"comparison"`
	MaxStep     int                `json:"max_step"`
}

// Session builds and compares both journeys for key. Keys without data get
// the synthetic journeys and the default profile.
func (s *Service) Session(ctx context.Context, key int64) (Session, error) {
	history, err := s.data.History(ctx, key)
	if err != nil {
		return Session{}, fmt.Errorf("loading history for customer %d: %w", key, err)
	}
	cust, err := s.data.Customer(ctx, key)
	if err != nil {
		return Session{}, fmt.Errorf("loading customer %d: %w", key, err)
	}

	rule := s.build(history, key, journey.RuleBased)
	transformer := s.build(history, key, journey.Transformer)
	cmp := journey.Compare(rule, transformer)
	metrics.RecordComparison(cmp.ImprovementPct)

	s.logger.Debug("session built",
		"customer", key,
		"history_rows", len(history),
		"synthetic", rule.Synthetic,
		"rule_conversions", cmp.RuleConversions,
		"transformer_conversions", cmp.TransformerConversions,
	)

	return Session{
		Customer:    cust,
		Rule:        rule,
		Transformer: transformer,
		Comparison:  cmp,
		MaxStep:     journey.MaxStep(rule, transformer),
	}, nil
}

// Journey builds a single strategy's journey for key.
func (s *Service) Journey(ctx context.Context, key int64, strategy journey.Strategy) (journey.Journey, error) {
	history, err := s.data.History(ctx, key)
	if err != nil {
		return journey.Journey{}, fmt.Errorf("loading history for customer %d: %w", key, err)
	}
	return s.build(history, key, strategy), nil
}

func (s *Service) build(history []journey.InteractionRow, key int64, strategy journey.Strategy) journey.Journey {
	j := s.builder.Build(history, key, strategy)
	metrics.RecordJourney(strategy.String(), j.Synthetic)
	return j
}

// CustomerKeys lists every customer with data, ascending.
func (s *Service) CustomerKeys(ctx context.Context) ([]int64, error) {
	keys, err := s.data.CustomerKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return keys, nil
}

// DefaultCustomer returns preferred when it has data, else the smallest
// known key, else preferred itself.
func (s *Service) DefaultCustomer(ctx context.Context, preferred int64) (int64, error) {
	keys, err := s.CustomerKeys(ctx)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if k == preferred {
			return preferred, nil
		}
	}
	if len(keys) > 0 {
		return keys[0], nil
	}
	return preferred, nil
}

// Frame returns what both phones show at step.
func (s Session) Frame(step int) (journey.Frame, error) {
	return journey.FrameAt(s.Rule, s.Transformer, step)
}

// Journey returns the session's journey for strategy.
func (s Session) Journey(strategy journey.Strategy) journey.Journey {
	if strategy == journey.Transformer {
		return s.Transformer
	}
	return s.Rule
}
