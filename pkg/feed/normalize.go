package feed

import (
	"fmt"
	"math"
)

// Observation is a provider candle normalized onto the canonical day identity,
// ready to merge into a DailyRecord.
type Observation struct {
	Provider string
	Day      string
	Price    float64
	Open     *float64
	High     *float64
	Low      *float64
	Volume   *float64
}

// NormalizeDaily maps one raw candle onto the canonical day shape. Candles
// with a non-finite or non-positive price, or a missing timestamp, are
// rejected with MalformedRecordError; optional fields are omitted rather than
// coerced to zero.
func NormalizeDaily(provider string, c Candle) (Observation, error) {
	if c.Timestamp.IsZero() {
		return Observation{}, &MalformedRecordError{Provider: provider, Reason: "unparsable timestamp"}
	}
	if !isValidPrice(c.Price) {
		return Observation{}, &MalformedRecordError{
			Provider: provider,
			Reason:   fmt.Sprintf("invalid price %v", c.Price),
		}
	}
	obs := Observation{
		Provider: provider,
		Day:      DayKey(c.Timestamp),
		Price:    c.Price,
		Open:     finiteOrNil(c.Open),
		High:     finiteOrNil(c.High),
		Low:      finiteOrNil(c.Low),
		Volume:   finiteOrNil(c.Volume),
	}
	return obs, nil
}

// finiteOrNil drops absent or non-finite optional fields.
func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	value := *v
	return &value
}
