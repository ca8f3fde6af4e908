package comparison

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/offerjourney/internal/dataset"
	"github.com/kalambet/offerjourney/internal/journey"
)

// --- Mock dataset ---

type mockDataset struct {
	histories map[int64][]journey.InteractionRow
	err       error
}

func (m *mockDataset) History(ctx context.Context, key int64) ([]journey.InteractionRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.histories[key], nil
}

func (m *mockDataset) Customer(ctx context.Context, key int64) (dataset.Customer, error) {
	if m.err != nil {
		return dataset.Customer{}, m.err
	}
	if _, ok := m.histories[key]; !ok {
		return dataset.DefaultCustomer(key), nil
	}
	return dataset.Customer{Key: key, CreditScore: 700, Income: 50000, Known: true}, nil
}

func (m *mockDataset) CustomerKeys(ctx context.Context) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	var keys []int64
	for k := range m.histories {
		keys = append(keys, k)
	}
	// Test fixtures hold at most two keys.
	if len(keys) == 2 && keys[0] > keys[1] {
		keys[0], keys[1] = keys[1], keys[0]
	}
	return keys, nil
}

func day(n int) time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func fiveRows() []journey.InteractionRow {
	rows := make([]journey.InteractionRow, 5)
	for i := range rows {
		rows[i] = journey.InteractionRow{Date: day(i), Offer: "Savings", Channel: "Email", Converted: true}
	}
	return rows
}

var ctx = context.Background()

func TestSession_UnknownCustomerIsSynthetic(t *testing.T) {
	svc := NewService(&mockDataset{histories: map[int64][]journey.InteractionRow{}}, nil)

	s, err := svc.Session(ctx, 3655615)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if !s.Rule.Synthetic || !s.Transformer.Synthetic {
		t.Error("expected synthetic journeys")
	}
	if s.Customer.Known {
		t.Error("expected default profile")
	}
	if s.Comparison.RuleConversions != 1 || s.Comparison.TransformerConversions != 4 {
		t.Errorf("comparison = %+v, want 1 vs 4", s.Comparison)
	}
	if s.Comparison.ImprovementPct != 300 {
		t.Errorf("improvement = %v, want 300", s.Comparison.ImprovementPct)
	}
	if s.MaxStep != 7 {
		t.Errorf("max step = %d, want 7", s.MaxStep)
	}
}

func TestSession_RealHistory(t *testing.T) {
	svc := NewService(&mockDataset{histories: map[int64][]journey.InteractionRow{42: fiveRows()}}, nil)

	s, err := svc.Session(ctx, 42)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s.Rule.Synthetic {
		t.Error("expected derived journey")
	}
	// Thinning keeps positions 0 and 3.
	if s.Comparison.RuleConversions != 2 || s.Comparison.TransformerConversions != 5 {
		t.Errorf("comparison = %+v, want 2 vs 5", s.Comparison)
	}
	if s.Comparison.ImprovementPct != 150 {
		t.Errorf("improvement = %v, want 150", s.Comparison.ImprovementPct)
	}
	if s.MaxStep != 4 {
		t.Errorf("max step = %d, want 4", s.MaxStep)
	}
	for _, st := range s.Rule.Steps {
		if st.CustomerKey != 42 {
			t.Fatalf("step customer key = %d, want 42", st.CustomerKey)
		}
	}
}

func TestSession_DatasetError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&mockDataset{err: boom}, nil)
	if _, err := svc.Session(ctx, 1); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if _, err := svc.Journey(ctx, 1, journey.RuleBased); !errors.Is(err, boom) {
		t.Errorf("Journey err = %v, want wrapped boom", err)
	}
}

func TestSession_Frame(t *testing.T) {
	svc := NewService(&mockDataset{histories: map[int64][]journey.InteractionRow{}}, nil)
	s, err := svc.Session(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	f, err := s.Frame(4)
	if err != nil {
		t.Fatalf("Frame(4): %v", err)
	}
	if f.Rule.Step == nil || !f.Rule.Step.Converted {
		t.Errorf("rule step 4 = %+v, want converted", f.Rule)
	}
	if _, err := s.Frame(8); !errors.Is(err, journey.ErrStepOutOfRange) {
		t.Errorf("Frame(8) err = %v, want ErrStepOutOfRange", err)
	}
}

func TestService_Journey(t *testing.T) {
	svc := NewService(&mockDataset{histories: map[int64][]journey.InteractionRow{}}, nil)
	j, err := svc.Journey(ctx, 5, journey.Transformer)
	if err != nil {
		t.Fatal(err)
	}
	if j.Strategy != journey.Transformer || j.Len() != 8 {
		t.Errorf("journey = %s with %d steps", j.Strategy, j.Len())
	}
}

func TestService_CustomPolicy(t *testing.T) {
	p := journey.DefaultPolicy()
	p.MinHistory = 10
	b, err := journey.NewBuilder(p)
	if err != nil {
		t.Fatal(err)
	}
	svc := NewService(&mockDataset{histories: map[int64][]journey.InteractionRow{42: fiveRows()}}, b)

	s, err := svc.Session(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Rule.Synthetic {
		t.Error("five rows under MinHistory 10 should be synthetic")
	}
}

func TestService_DefaultCustomer(t *testing.T) {
	tests := []struct {
		name      string
		histories map[int64][]journey.InteractionRow
		preferred int64
		want      int64
	}{
		{"preferred present", map[int64][]journey.InteractionRow{3655615: nil, 9: nil}, 3655615, 3655615},
		{"falls back to first key", map[int64][]journey.InteractionRow{9: nil, 4: nil}, 3655615, 4},
		{"empty table keeps preferred", map[int64][]journey.InteractionRow{}, 3655615, 3655615},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockDataset{histories: tt.histories}, nil)
			got, err := svc.DefaultCustomer(ctx, tt.preferred)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DefaultCustomer = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSession_Timeline(t *testing.T) {
	svc := NewService(&mockDataset{histories: map[int64][]journey.InteractionRow{}}, nil)
	s, err := svc.Session(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	tl := s.Timeline()
	if len(tl.Series) != 2 {
		t.Fatalf("series = %d, want 2", len(tl.Series))
	}
	rule := tl.Series[0]
	if rule.Strategy != journey.RuleBased || len(rule.Points) != 8 {
		t.Fatalf("rule series = %+v", rule)
	}
	if rule.Points[4].Outcome != OutcomeConverted || rule.Points[4].Color != "#28a745" {
		t.Errorf("point 4 = %+v, want converted green", rule.Points[4])
	}
	if rule.Points[0].Outcome != OutcomeNoConvert || rule.Points[0].Color != "#dc3545" {
		t.Errorf("point 0 = %+v, want no-convert red", rule.Points[0])
	}

	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !tl.Start.Equal(wantStart) || !tl.End.Equal(wantStart.AddDate(0, 0, 21)) {
		t.Errorf("range = %s..%s", tl.Start, tl.End)
	}
}

func TestSession_JourneySelector(t *testing.T) {
	s := Session{
		Rule:        journey.Journey{Strategy: journey.RuleBased},
		Transformer: journey.Journey{Strategy: journey.Transformer},
	}
	if s.Journey(journey.Transformer).Strategy != journey.Transformer {
		t.Error("wrong journey for transformer")
	}
	if s.Journey(journey.RuleBased).Strategy != journey.RuleBased {
		t.Error("wrong journey for rule-based")
	}
}
