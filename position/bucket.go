package position

import "github.com/shopspring/decimal"

// Bucket represents the band a close price's location ratio falls in.
type Bucket int

const (
	// NoRange marks a degenerate window where the highest and lowest prices are equal.
	NoRange Bucket = iota
	Low
	MidLow
	MidHigh
	High
)

// Buckets lists the location buckets in ascending order.
var Buckets = []Bucket{Low, MidLow, MidHigh, High}

// String stringifies the provided bucket.
func (b Bucket) String() string {
	switch b {
	case NoRange:
		return "no range"
	case Low:
		return "low"
	case MidLow:
		return "mid-low"
	case MidHigh:
		return "mid-high"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

var (
	quarter       = decimal.RequireFromString("0.25")
	half          = decimal.RequireFromString("0.50")
	threeQuarters = decimal.RequireFromString("0.75")
)

// ClassifyLocation returns the bucket for the provided location ratio.
//
// Upper bounds are inclusive: a ratio of exactly 0.25 is Low, 0.50 is MidLow and 0.75 is
// MidHigh.
func ClassifyLocation(ratio decimal.Decimal) Bucket {
	switch {
	case ratio.LessThanOrEqual(quarter):
		return Low
	case ratio.LessThanOrEqual(half):
		return MidLow
	case ratio.LessThanOrEqual(threeQuarters):
		return MidHigh
	default:
		return High
	}
}

// AmplitudeBucket represents the band a window's amplitude falls in.
type AmplitudeBucket int

const (
	UltraLow AmplitudeBucket = iota
	MediumLow
	MediumHigh
	UltraHigh
)

// AmplitudeBuckets lists the amplitude buckets in ascending order.
var AmplitudeBuckets = []AmplitudeBucket{UltraLow, MediumLow, MediumHigh, UltraHigh}

// String stringifies the provided amplitude bucket.
func (b AmplitudeBucket) String() string {
	switch b {
	case UltraLow:
		return "ultra-low"
	case MediumLow:
		return "medium-low"
	case MediumHigh:
		return "medium-high"
	case UltraHigh:
		return "ultra-high"
	default:
		return "unknown"
	}
}

var (
	twentyPercent = decimal.RequireFromString("0.20")
	fortyPercent  = decimal.RequireFromString("0.40")
	sixtyPercent  = decimal.RequireFromString("0.60")
)

// ClassifyAmplitude returns the bucket for the provided amplitude ratio. Lower bounds
// are inclusive.
func ClassifyAmplitude(amplitude decimal.Decimal) AmplitudeBucket {
	switch {
	case amplitude.LessThan(twentyPercent):
		return UltraLow
	case amplitude.LessThan(fortyPercent):
		return MediumLow
	case amplitude.LessThan(sixtyPercent):
		return MediumHigh
	default:
		return UltraHigh
	}
}
