package comparison

import (
	"time"

	"github.com/kalambet/offerjourney/internal/journey"
)

// Outcome labels and their chart colors.
const (
	OutcomeConverted = "Converted"
	OutcomeNoConvert = "No Convert"

	ColorConverted = "#28a745"
	ColorNoConvert = "#dc3545"
)

// TimelinePoint is one step plotted on a journey timeline.
type TimelinePoint struct {
	Index     int       `json:"index"`
	Date      time.Time `json:"date"`
	Offer     string    `json:"offer"`
	Channel   string    `json:"channel"`
	Converted bool      `json:"converted"`
	Outcome   string    `json:"outcome"`
	Color     string    `json:"color"`
}

// TimelineSeries is the full timeline of one strategy.
type TimelineSeries struct {
	Strategy journey.Strategy `json:"strategy"`
	Label    string           `json:"label"`
	Points   []TimelinePoint  `json:"points"`
}

// Timeline holds both series over a shared date range.
type Timeline struct {
	Start  time.Time        `json:"start"`
	End    time.Time        `json:"end"`
	Series []TimelineSeries `json:"series"`
}

// Timeline plots both journeys of the session.
func (s Session) Timeline() Timeline {
	tl := Timeline{Series: []TimelineSeries{series(s.Rule), series(s.Transformer)}}
	for _, ser := range tl.Series {
		for _, p := range ser.Points {
			if tl.Start.IsZero() || p.Date.Before(tl.Start) {
				tl.Start = p.Date
			}
			if p.Date.After(tl.End) {
				tl.End = p.Date
			}
		}
	}
	return tl
}

func series(j journey.Journey) TimelineSeries {
	ser := TimelineSeries{Strategy: j.Strategy, Label: j.Strategy.Label(), Points: make([]TimelinePoint, 0, j.Len())}
	for i, st := range j.Steps {
		p := TimelinePoint{
			Index:     i,
			Date:      st.Date,
			Offer:     st.Offer,
			Channel:   st.Channel,
			Converted: st.Converted,
			Outcome:   OutcomeNoConvert,
			Color:     ColorNoConvert,
		}
		if st.Converted {
			p.Outcome, p.Color = OutcomeConverted, ColorConverted
		}
		ser.Points = append(ser.Points, p)
	}
	return ser
}
