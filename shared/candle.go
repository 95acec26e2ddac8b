package shared

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single daily kline for a symbol.
type Candle struct {
	Symbol      string
	OpenTime    time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	QuoteVolume decimal.Decimal
}

// Day returns the UTC calendar day the candle opened on.
func (c *Candle) Day() time.Time {
	return DayOf(c.OpenTime)
}

// FetchDirection returns the direction of the candle.
//
// A flat candle (close == open) is a rise, never a fall.
func (c *Candle) FetchDirection() Direction {
	if c.Close.GreaterThanOrEqual(c.Open) {
		return Rise
	}

	return Fall
}

// Validate asserts the candle's prices are internally consistent.
func (c *Candle) Validate() error {
	day := c.Day().Format(DateLayout)
	switch {
	case c.High.LessThan(c.Low):
		return fmt.Errorf("%w: %s %s high %s below low %s", ErrInvalidCandle,
			c.Symbol, day, c.High, c.Low)
	case c.High.LessThan(decimal.Max(c.Open, c.Close)):
		return fmt.Errorf("%w: %s %s high %s below body", ErrInvalidCandle,
			c.Symbol, day, c.High)
	case c.Low.GreaterThan(decimal.Min(c.Open, c.Close)):
		return fmt.Errorf("%w: %s %s low %s above body", ErrInvalidCandle,
			c.Symbol, day, c.Low)
	case c.Volume.IsNegative() || c.QuoteVolume.IsNegative():
		return fmt.Errorf("%w: %s %s negative volume", ErrInvalidCandle, c.Symbol, day)
	}

	return nil
}
