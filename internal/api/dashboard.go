package api

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kalambet/offerjourney/internal/comparison"
	"github.com/kalambet/offerjourney/internal/journey"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var dashboardTmpl = template.Must(
	template.New("dashboard.html.tmpl").Funcs(template.FuncMap{
		"money": money,
		"day":   func(t time.Time) string { return t.Format("Jan 02, 2006") },
		"pct":   func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
	}).ParseFS(templateFS, "templates/dashboard.html.tmpl"),
)

// Timeline chart geometry, in SVG user units.
const (
	chartWidth   = 520.0
	chartHeight  = 90.0
	chartPadding = 24.0
)

type insight struct {
	Title string
	Text  string
}

var keyInsights = []insight{
	{"Rule-Based System", "Shows static, repetitive offers leading to lower conversion rates"},
	{"Transformer Recommender", "Provides dynamic, personalized recommendations that drive higher engagement"},
	{"Business Impact", "Transformer model identifies optimal timing and offer combinations for individual customers"},
}

type phoneView struct {
	Heading string
	journey.StepView
}

type chartPoint struct {
	X, Y    float64
	Color   string
	Tooltip string
	// Converted points are drawn as diamonds, the rest as circles.
	Converted bool
	Diamond   string
}

type chartView struct {
	Label  string
	Width  float64
	Height float64
	Points []chartPoint
}

type dashboardView struct {
	Customers []int64
	Selected  int64
	Step      int
	Session   comparison.Session
	Frame     journey.Frame
	// StepDate is the date shown under "Current Step Info".
	StepDate      time.Time
	Phones        []phoneView
	ShowQuickGain bool
	Charts        []chartView
	Start, End    time.Time
	Insights      []insight
}

func handleDashboard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		keys, err := deps.Service.CustomerKeys(ctx)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing customers: %v", err)
			return
		}

		var key int64
		if v := r.URL.Query().Get("customer"); v != "" {
			key, err = strconv.ParseInt(v, 10, 64)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid customer %q", v)
				return
			}
		} else {
			key, err = deps.Service.DefaultCustomer(ctx, deps.DefaultCustomer)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
		}

		step := 0
		if v := r.URL.Query().Get("step"); v != "" {
			step, err = strconv.Atoi(v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid step %q", v)
				return
			}
		}

		sess, err := deps.Service.Session(ctx, key)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		// The slider cannot leave its range, so a hand-edited URL is clamped.
		step = max(0, min(step, sess.MaxStep))
		frame, err := sess.Frame(step)
		if err != nil && !errors.Is(err, journey.ErrStepOutOfRange) {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		view := newDashboardView(keys, sess, frame)

		var buf bytes.Buffer
		if err := dashboardTmpl.Execute(&buf, view); err != nil {
			slog.Error("rendering dashboard", "customer", key, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "rendering dashboard")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

func newDashboardView(keys []int64, sess comparison.Session, frame journey.Frame) dashboardView {
	view := dashboardView{
		Customers: keys,
		Selected:  sess.Customer.Key,
		Step:      frame.Index,
		Session:   sess,
		Frame:     frame,
		Phones: []phoneView{
			{Heading: "Rule-Based System", StepView: frame.Rule},
			{Heading: "Transformer Recommender System", StepView: frame.Transformer},
		},
		ShowQuickGain: sess.Comparison.RuleConversions > 0,
		Insights:      keyInsights,
	}

	if frame.Rule.Step != nil {
		view.StepDate = frame.Rule.Step.Date
	} else if frame.Transformer.Step != nil {
		view.StepDate = frame.Transformer.Step.Date
	}

	tl := sess.Timeline()
	view.Start, view.End = tl.Start, tl.End
	for _, ser := range tl.Series {
		view.Charts = append(view.Charts, chartFor(ser, tl.Start, tl.End))
	}
	return view
}

// chartFor lays the series out on a shared date axis. A zero-length range
// puts every point in the middle.
func chartFor(ser comparison.TimelineSeries, start, end time.Time) chartView {
	c := chartView{Label: ser.Label, Width: chartWidth, Height: chartHeight}
	span := end.Sub(start)
	inner := chartWidth - 2*chartPadding
	for _, p := range ser.Points {
		x := chartWidth / 2
		if span > 0 {
			x = chartPadding + inner*float64(p.Date.Sub(start))/float64(span)
		}
		x = math.Round(x*10) / 10
		y := chartHeight / 2
		c.Points = append(c.Points, chartPoint{
			X:         x,
			Y:         y,
			Diamond:   fmt.Sprintf("%g,%g %g,%g %g,%g %g,%g", x, y-7, x+7, y, x, y+7, x-7, y),
			Color:     p.Color,
			Converted: p.Converted,
			Tooltip:   fmt.Sprintf("%s: %s via %s (%s)", p.Date.Format("Jan 02, 2006"), p.Offer, p.Channel, p.Outcome),
		})
	}
	return c
}

// money formats whole dollars with thousands separators.
func money(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}
