package ph

import "math"

// precision of every published mean, in decimal places
const precision = 4

// Averager collects a fixed number of samples and hands out their mean.
// It is owned by a single task and is not safe for concurrent use.
type Averager struct {
	window int
	values []float64
}

func NewAverager(window int) *Averager {
	if window <= 0 {
		window = 1
	}
	return &Averager{window: window, values: make([]float64, 0, window)}
}

// Push adds a sample. Once the window is full the oldest sample is dropped.
func (a *Averager) Push(v float64) {
	if len(a.values) == a.window {
		copy(a.values, a.values[1:])
		a.values = a.values[:a.window-1]
	}
	a.values = append(a.values, v)
}

func (a *Averager) IsFull() bool { return len(a.values) >= a.window }

func (a *Averager) Len() int { return len(a.values) }

func (a *Averager) Window() int { return a.window }

// DrainMean returns the rounded mean and empties the buffer.
// It returns nil on an empty buffer.
func (a *Averager) DrainMean() *float64 {
	m := MeanOrNone(a.values)
	a.values = a.values[:0]
	return m
}

// MeanOrNone is the arithmetic mean rounded to the module precision, nil
// for no values.
func MeanOrNone(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	m := round(sum/float64(len(values)), precision)
	return &m
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
