package ph

import (
	"fmt"

	"github.com/Knetic/govaluate"
	pkgerrors "github.com/pkg/errors"
)

// compensation temperature used while the probe has no reading yet
const referenceTemperature = 25.0

// Formula turns a TDS probe voltage into ppm. The expression sees v (volts)
// and t (water temperature, celsius).
type Formula struct {
	src  string
	expr *govaluate.EvaluableExpression
}

// NewFormula parses src. An empty src yields a nil Formula.
func NewFormula(src string) (*Formula, error) {
	if src == "" {
		return nil, nil
	}
	expr, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid tds formula %q", src)
	}
	return &Formula{src: src, expr: expr}, nil
}

func (f *Formula) Eval(v float64, t *float64) (float64, error) {
	temp := referenceTemperature
	if t != nil {
		temp = *t
	}
	out, err := f.expr.Evaluate(map[string]interface{}{"v": v, "t": temp})
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to evaluate %q", f.src)
	}
	ppm, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("formula %q returned %T, expected a number", f.src, out)
	}
	return ppm, nil
}

func (f *Formula) String() string { return f.src }
