package journey

import (
	"errors"
	"fmt"
)

// ErrStepOutOfRange is returned for step indexes outside [0, MaxStep].
var ErrStepOutOfRange = errors.New("step out of range")

// ExhaustedMessage is shown for a journey that has no step at the requested index.
const ExhaustedMessage = "No further interactions"

// MaxStep is the last index the step slider can select for the pair.
func MaxStep(a, b Journey) int {
	n := a.Len()
	if b.Len() > n {
		n = b.Len()
	}
	if n == 0 {
		return 0
	}
	return n - 1
}

// StepView is one journey's contribution to a Frame.
type StepView struct {
	Strategy  Strategy `json:"strategy"`
	Step      *Step    `json:"step,omitempty"`
	Exhausted bool     `json:"exhausted"`
	Message   string   `json:"message,omitempty"`
}

// Frame is what both phones show at one slider position.
type Frame struct {
	Index       int      `json:"index"`
	MaxStep     int      `json:"max_step"`
	Rule        StepView `json:"rule"`
	Transformer StepView `json:"transformer"`
}

// FrameAt returns the views of both journeys at index i. A journey shorter
// than i+1 is marked exhausted; only an index outside the slider range is an
// error.
func FrameAt(rule, transformer Journey, i int) (Frame, error) {
	last := MaxStep(rule, transformer)
	if i < 0 || i > last {
		return Frame{}, fmt.Errorf("%w: %d not in [0,%d]", ErrStepOutOfRange, i, last)
	}
	return Frame{
		Index:       i,
		MaxStep:     last,
		Rule:        viewAt(rule, i),
		Transformer: viewAt(transformer, i),
	}, nil
}

func viewAt(j Journey, i int) StepView {
	s, ok := j.At(i)
	if !ok {
		return StepView{Strategy: j.Strategy, Exhausted: true, Message: ExhaustedMessage}
	}
	return StepView{Strategy: j.Strategy, Step: &s}
}
