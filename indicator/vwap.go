package indicator

import (
	"github.com/dnldd/klinescope/shared"
	"github.com/shopspring/decimal"
)

var three = decimal.NewFromInt(3)

// VWAP represents the Volume Weighted Average Price indicator over daily candles.
type VWAP struct {
	typicalPriceVolume decimal.Decimal
	volume             decimal.Decimal
}

// Update cummulatively updates the VWAP indicator with the provided candle.
func (v *VWAP) Update(candle *shared.Candle) {
	typicalPrice := candle.High.Add(candle.Low).Add(candle.Close).Div(three)
	v.typicalPriceVolume = v.typicalPriceVolume.Add(typicalPrice.Mul(candle.Volume))
	v.volume = v.volume.Add(candle.Volume)
}

// Value returns the current VWAP. It is not available until a candle with volume has
// been seen.
func (v *VWAP) Value() (decimal.Decimal, bool) {
	if !v.volume.IsPositive() {
		return decimal.Zero, false
	}

	return v.typicalPriceVolume.Div(v.volume), true
}

// SeriesVWAP returns the VWAP of the provided candles.
func SeriesVWAP(candles []shared.Candle) (decimal.Decimal, bool) {
	var v VWAP
	for idx := range candles {
		v.Update(&candles[idx])
	}

	return v.Value()
}
