package models

import "time"

// PricePoint is one close observation for a symbol.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

// Tick is one live trade observation from the market stream.
type Tick struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// Series is the ordered close history for one symbol. Timestamps must be
// strictly increasing; the pipeline rejects anything else before windowing.
type Series struct {
	Symbol string
	Points []PricePoint
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Points) }

// Prices returns the raw close values in temporal order.
func (s *Series) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// Last returns the most recent observation, or false when the series is empty.
func (s *Series) Last() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}
