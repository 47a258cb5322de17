package ph

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrInsufficientPoints = errors.New("at least 2 calibration points are required")
	ErrNonMonotonic       = errors.New("calibration points are not monotonic")
	ErrOutOfDomain        = errors.New("calibration point outside the measurable domain")
	ErrCurveUnavailable   = errors.New("no calibration curve")
	ErrPersistence        = errors.New("failed to persist calibration points")
	ErrPointNotFound      = errors.New("calibration point not found")
)

// CalibrationPoint links a raw sensor value to a known physical value.
type CalibrationPoint struct {
	Raw      float64 `json:"adc" yaml:"adc"`
	Physical float64 `json:"ph" yaml:"ph"`
}

// CurvePoint is one (raw, physical) pair. It encodes as a two element array.
type CurvePoint struct {
	Raw      float64
	Physical float64
}

func (p CurvePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Raw, p.Physical})
}

func (p *CurvePoint) UnmarshalJSON(b []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	p.Raw, p.Physical = pair[0], pair[1]
	return nil
}

// Curve is an immutable raw-to-physical mapping covering [Min, Max].
// It is never modified after BuildCurve returns; a new calibration produces
// a new Curve.
type Curve struct {
	// Segment is the interpolated part, ascending by physical value.
	Segment []CurvePoint
	// Points is the full extrapolated curve, ascending by raw value.
	Points []CurvePoint
	// Tails holds the extrapolated points outside the segment, ascending by
	// raw value.
	Tails []CurvePoint
	Min    float64
	Max    float64
	Built  time.Time
}

// Lookup maps a raw value through the curve.
func (c *Curve) Lookup(raw float64) float64 {
	return Lookup(c.Points, raw)
}

// BuildCurve validates points and builds the full curve. It never returns a
// partial curve.
func BuildCurve(points map[string]CalibrationPoint, resolution int, min, max float64) (*Curve, error) {
	list := make([]CalibrationPoint, 0, len(points))
	for _, p := range points {
		list = append(list, p)
	}
	if err := Validate(list, min, max); err != nil {
		return nil, err
	}
	segment, err := Interpolate(list, resolution)
	if err != nil {
		return nil, err
	}
	low, high, err := tails(segment, min, max, resolution)
	if err != nil {
		return nil, err
	}
	return &Curve{
		Segment: segment,
		Points:  byRaw(low, segment, high),
		Tails:   byRaw(low, high),
		Min:     min,
		Max:     max,
		Built:   time.Now(),
	}, nil
}

// Validate rejects sets a monotonic transducer cannot produce: fewer than two
// points, repeated physical values, raw values that do not move in one
// direction, and physical values outside [min, max].
func Validate(points []CalibrationPoint, min, max float64) error {
	if len(points) < 2 {
		return ErrInsufficientPoints
	}
	sorted := sortedByPhysical(points)
	for _, p := range sorted {
		if math.IsNaN(p.Raw) || math.IsNaN(p.Physical) || math.IsInf(p.Raw, 0) || math.IsInf(p.Physical, 0) {
			return fmt.Errorf("%w: invalid value %v", ErrNonMonotonic, p)
		}
		if p.Physical < min || p.Physical > max {
			return fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfDomain, p.Physical, min, max)
		}
	}
	direction := 0.0
	for i := 1; i < len(sorted); i++ {
		dp := sorted[i].Physical - sorted[i-1].Physical
		dr := sorted[i].Raw - sorted[i-1].Raw
		if dp == 0 || dr == 0 {
			return fmt.Errorf("%w: duplicate value at %v", ErrNonMonotonic, sorted[i])
		}
		if direction == 0 {
			direction = math.Copysign(1, dr)
			continue
		}
		if math.Copysign(1, dr) != direction {
			return fmt.Errorf("%w: direction changes at %v", ErrNonMonotonic, sorted[i])
		}
	}
	return nil
}

// Interpolate sorts points by physical value and fills every gap between
// neighbours with resolution evenly spaced pairs, starting at the lower
// point. The last point closes the sequence, so every calibration point lies
// on the result and its length is (len(points)-1)*resolution + 1.
func Interpolate(points []CalibrationPoint, resolution int) ([]CurvePoint, error) {
	if len(points) < 2 {
		return nil, ErrInsufficientPoints
	}
	if resolution < 1 {
		resolution = 1
	}
	sorted := sortedByPhysical(points)
	out := make([]CurvePoint, 0, (len(sorted)-1)*resolution+1)
	for i := 0; i < len(sorted)-1; i++ {
		a, b := sorted[i], sorted[i+1]
		for j := 0; j < resolution; j++ {
			t := float64(j) / float64(resolution)
			out = append(out, CurvePoint{
				Raw:      a.Raw + (b.Raw-a.Raw)*t,
				Physical: a.Physical + (b.Physical-a.Physical)*t,
			})
		}
	}
	last := sorted[len(sorted)-1]
	return append(out, CurvePoint{Raw: last.Raw, Physical: last.Physical}), nil
}

// Extrapolate extends an interpolated segment (ascending by physical value)
// to [min, max] using the slope of its two outermost pairs on each side:
// resolution points from min up to the segment, and resolution points after
// it up to max. The result is ordered by ascending raw value and holds
// exactly 2*resolution + len(segment) points.
func Extrapolate(segment []CurvePoint, min, max float64, resolution int) ([]CurvePoint, error) {
	low, high, err := tails(segment, min, max, resolution)
	if err != nil {
		return nil, err
	}
	return byRaw(low, segment, high), nil
}

// tails returns the resolution points from min up to the segment and the
// resolution points after it up to max.
func tails(segment []CurvePoint, min, max float64, resolution int) (low, high []CurvePoint, err error) {
	if len(segment) < 2 {
		return nil, nil, ErrInsufficientPoints
	}
	if resolution < 1 {
		resolution = 1
	}
	n := len(segment)
	lo, hi := segment[0], segment[n-1]
	below := line(segment[0], segment[1])
	above := line(segment[n-2], segment[n-1])

	low = make([]CurvePoint, 0, resolution)
	for i := 0; i < resolution; i++ {
		p := min + (lo.Physical-min)*float64(i)/float64(resolution)
		low = append(low, CurvePoint{Raw: below(p), Physical: p})
	}
	high = make([]CurvePoint, 0, resolution)
	for i := 1; i <= resolution; i++ {
		p := hi.Physical + (max-hi.Physical)*float64(i)/float64(resolution)
		if i == resolution {
			p = max
		}
		high = append(high, CurvePoint{Raw: above(p), Physical: p})
	}
	return low, high, nil
}

// byRaw concatenates parts into a new slice ordered by ascending raw value.
func byRaw(parts ...[]CurvePoint) []CurvePoint {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]CurvePoint, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Raw < out[j].Raw })
	return out
}

// Lookup linearly interpolates physical values on a curve ascending by raw
// value, clamping to the end points outside it.
func Lookup(curve []CurvePoint, raw float64) float64 {
	n := len(curve)
	if n == 0 {
		return math.NaN()
	}
	if raw <= curve[0].Raw {
		return curve[0].Physical
	}
	if raw >= curve[n-1].Raw {
		return curve[n-1].Physical
	}
	i := sort.Search(n, func(i int) bool { return curve[i].Raw >= raw })
	if curve[i].Raw == raw {
		return curve[i].Physical
	}
	a, b := curve[i-1], curve[i]
	if b.Raw == a.Raw {
		return a.Physical
	}
	return a.Physical + (b.Physical-a.Physical)*(raw-a.Raw)/(b.Raw-a.Raw)
}

// line returns raw as a linear function of physical through a and b.
func line(a, b CurvePoint) func(float64) float64 {
	slope := (b.Raw - a.Raw) / (b.Physical - a.Physical)
	return func(p float64) float64 { return a.Raw + slope*(p-a.Physical) }
}

func sortedByPhysical(points []CalibrationPoint) []CalibrationPoint {
	sorted := make([]CalibrationPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Physical < sorted[j].Physical })
	return sorted
}
