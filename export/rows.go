package export

import (
	"strconv"
	"strings"

	"github.com/dnldd/klinescope/position"
	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/streak"
)

const (
	// ratioPlaces is the number of decimal places ratios are exported with.
	ratioPlaces = 4
	// percentPlaces is the number of decimal places percentages are exported with.
	percentPlaces = 2
	// symbolSeparator joins symbol lists into a single field.
	symbolSeparator = " "
)

// Row defines the requirements for an exportable flat record.
type Row interface {
	// Header returns the column names of the row.
	Header() []string
	// Record returns the row's fields in column order.
	Record() []string
}

// PositionRow is the flat export record of a position result.
type PositionRow struct {
	Symbol        string `json:"symbol" parquet:"symbol"`
	Date          string `json:"date" parquet:"date"`
	LookbackDays  int32  `json:"lookbackDays" parquet:"lookback_days"`
	HighestPrice  string `json:"highestPrice" parquet:"highest_price"`
	LowestPrice   string `json:"lowestPrice" parquet:"lowest_price"`
	ClosePrice    string `json:"closePrice" parquet:"close_price"`
	PriceRange    string `json:"priceRange" parquet:"price_range"`
	LocationRatio string `json:"locationRatio" parquet:"location_ratio"`
	Degenerate    bool   `json:"degenerate" parquet:"degenerate"`
	Bucket        string `json:"bucket" parquet:"bucket"`
	VWAP          string `json:"vwap" parquet:"vwap"`
}

// Header returns the column names of the row.
func (r PositionRow) Header() []string {
	return []string{"symbol", "date", "lookback_days", "highest_price", "lowest_price",
		"close_price", "price_range", "location_ratio", "degenerate", "bucket", "vwap"}
}

// Record returns the row's fields in column order.
func (r PositionRow) Record() []string {
	return []string{r.Symbol, r.Date, strconv.Itoa(int(r.LookbackDays)), r.HighestPrice,
		r.LowestPrice, r.ClosePrice, r.PriceRange, r.LocationRatio,
		strconv.FormatBool(r.Degenerate), r.Bucket, r.VWAP}
}

// PositionRows flattens the provided position results.
func PositionRows(results []position.PositionResult) []PositionRow {
	rows := make([]PositionRow, 0, len(results))
	for idx := range results {
		res := &results[idx]
		ratio := ""
		if !res.Degenerate {
			ratio = res.LocationRatio.StringFixed(ratioPlaces)
		}
		vwap := ""
		if !res.VWAP.IsZero() {
			vwap = res.VWAP.StringFixed(ratioPlaces)
		}

		rows = append(rows, PositionRow{
			Symbol:        res.Symbol,
			Date:          res.ReferenceDate.Format(shared.DateLayout),
			LookbackDays:  int32(res.LookbackDays),
			HighestPrice:  res.HighestPrice.String(),
			LowestPrice:   res.LowestPrice.String(),
			ClosePrice:    res.ClosePrice.String(),
			PriceRange:    res.PriceRange.String(),
			LocationRatio: ratio,
			Degenerate:    res.Degenerate,
			Bucket:        res.Bucket.String(),
			VWAP:          vwap,
		})
	}

	return rows
}

// AmplitudeRow is the flat export record of an amplitude result.
type AmplitudeRow struct {
	Symbol           string `json:"symbol" parquet:"symbol"`
	Date             string `json:"date" parquet:"date"`
	LookbackDays     int32  `json:"lookbackDays" parquet:"lookback_days"`
	HighestPrice     string `json:"highestPrice" parquet:"highest_price"`
	LowestPrice      string `json:"lowestPrice" parquet:"lowest_price"`
	AmplitudePercent string `json:"amplitudePercent" parquet:"amplitude_percent"`
	Bucket           string `json:"bucket" parquet:"bucket"`
}

// Header returns the column names of the row.
func (r AmplitudeRow) Header() []string {
	return []string{"symbol", "date", "lookback_days", "highest_price", "lowest_price",
		"amplitude_percent", "bucket"}
}

// Record returns the row's fields in column order.
func (r AmplitudeRow) Record() []string {
	return []string{r.Symbol, r.Date, strconv.Itoa(int(r.LookbackDays)), r.HighestPrice,
		r.LowestPrice, r.AmplitudePercent, r.Bucket}
}

// AmplitudeRows flattens the provided amplitude results.
func AmplitudeRows(results []position.AmplitudeResult) []AmplitudeRow {
	rows := make([]AmplitudeRow, 0, len(results))
	for idx := range results {
		res := &results[idx]
		rows = append(rows, AmplitudeRow{
			Symbol:           res.Symbol,
			Date:             res.ReferenceDate.Format(shared.DateLayout),
			LookbackDays:     int32(res.LookbackDays),
			HighestPrice:     res.HighestPrice.String(),
			LowestPrice:      res.LowestPrice.String(),
			AmplitudePercent: res.AmplitudePercent.StringFixed(percentPlaces),
			Bucket:           res.Bucket.String(),
		})
	}

	return rows
}

// StreakRow is the flat export record of a single streak length on a day.
type StreakRow struct {
	Date        string `json:"date" parquet:"date"`
	Length      int32  `json:"length" parquet:"length"`
	RiseCount   int32  `json:"riseCount" parquet:"rise_count"`
	FallCount   int32  `json:"fallCount" parquet:"fall_count"`
	RiseSymbols string `json:"riseSymbols" parquet:"rise_symbols"`
	FallSymbols string `json:"fallSymbols" parquet:"fall_symbols"`
}

// Header returns the column names of the row.
func (r StreakRow) Header() []string {
	return []string{"date", "length", "rise_count", "fall_count", "rise_symbols", "fall_symbols"}
}

// Record returns the row's fields in column order.
func (r StreakRow) Record() []string {
	return []string{r.Date, strconv.Itoa(int(r.Length)), strconv.Itoa(int(r.RiseCount)),
		strconv.Itoa(int(r.FallCount)), r.RiseSymbols, r.FallSymbols}
}

// StreakRows flattens the provided summaries, one row per day and length, keeping the
// order of the summaries.
func StreakRows(summaries []streak.Summary) []StreakRow {
	var rows []StreakRow
	for _, summary := range summaries {
		date := summary.Date.Format(shared.DateLayout)
		for _, ls := range summary.Lengths {
			rows = append(rows, StreakRow{
				Date:        date,
				Length:      int32(ls.Length),
				RiseCount:   int32(ls.RiseCount),
				FallCount:   int32(ls.FallCount),
				RiseSymbols: strings.Join(ls.RiseSymbols, symbolSeparator),
				FallSymbols: strings.Join(ls.FallSymbols, symbolSeparator),
			})
		}
	}

	return rows
}

// BucketRow is the flat export record of a bucket's membership.
type BucketRow struct {
	Bucket  string `json:"bucket" parquet:"bucket"`
	Count   int32  `json:"count" parquet:"count"`
	Symbols string `json:"symbols" parquet:"symbols"`
}

// Header returns the column names of the row.
func (r BucketRow) Header() []string {
	return []string{"bucket", "count", "symbols"}
}

// Record returns the row's fields in column order.
func (r BucketRow) Record() []string {
	return []string{r.Bucket, strconv.Itoa(int(r.Count)), r.Symbols}
}

// PositionBucketRows flattens the provided position groups in bucket order, listing the
// no range bucket last when present.
func PositionBucketRows(groups map[position.Bucket][]position.PositionResult) []BucketRow {
	order := append([]position.Bucket{}, position.Buckets...)
	if _, ok := groups[position.NoRange]; ok {
		order = append(order, position.NoRange)
	}

	rows := make([]BucketRow, 0, len(order))
	for _, bucket := range order {
		members := groups[bucket]
		symbols := make([]string, 0, len(members))
		for idx := range members {
			symbols = append(symbols, members[idx].Symbol)
		}

		rows = append(rows, BucketRow{
			Bucket:  bucket.String(),
			Count:   int32(len(members)),
			Symbols: strings.Join(symbols, symbolSeparator),
		})
	}

	return rows
}

// AmplitudeBucketRows flattens the provided amplitude groups in bucket order.
func AmplitudeBucketRows(groups map[position.AmplitudeBucket][]position.AmplitudeResult) []BucketRow {
	rows := make([]BucketRow, 0, len(position.AmplitudeBuckets))
	for _, bucket := range position.AmplitudeBuckets {
		members := groups[bucket]
		symbols := make([]string, 0, len(members))
		for idx := range members {
			symbols = append(symbols, members[idx].Symbol)
		}

		rows = append(rows, BucketRow{
			Bucket:  bucket.String(),
			Count:   int32(len(members)),
			Symbols: strings.Join(symbols, symbolSeparator),
		})
	}

	return rows
}

// SkipRow is the flat export record of a skipped symbol.
type SkipRow struct {
	Symbol string `json:"symbol" parquet:"symbol"`
	Reason string `json:"reason" parquet:"reason"`
}

// Header returns the column names of the row.
func (r SkipRow) Header() []string {
	return []string{"symbol", "reason"}
}

// Record returns the row's fields in column order.
func (r SkipRow) Record() []string {
	return []string{r.Symbol, r.Reason}
}

// SkipRows flattens the provided skips.
func SkipRows(skips []shared.Skip) []SkipRow {
	rows := make([]SkipRow, 0, len(skips))
	for _, s := range skips {
		rows = append(rows, SkipRow{Symbol: s.Symbol, Reason: s.Reason.Error()})
	}

	return rows
}
