// Package returns converts price levels into periodic return series and
// aligns series by date intersection. Gaps are resolved by intersection
// when series are combined, never by interpolation.
package returns

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-risk/internal/domain"
)

// Builder converts ascending price series into monthly return series.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a new return series builder.
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{
		log: log.With().Str("component", "returns_builder").Logger(),
	}
}

// FromPrices converts an ascending price series into a return series via
// forward-filled-then-differenced percent change. Output length is input
// length minus one. Fewer than 2 observations yields an empty series, not
// an error; data-quality filtering happens upstream.
func (b *Builder) FromPrices(prices domain.Series) domain.Series {
	if prices.Len() < 2 {
		return domain.Series{Dates: []string{}, Values: []float64{}}
	}

	filled := forwardFill(prices.Values)

	dates := make([]string, 0, prices.Len()-1)
	values := make([]float64, 0, prices.Len()-1)
	for i := 1; i < len(filled); i++ {
		prev := filled[i-1]
		curr := filled[i]
		if prev > 0 && !math.IsNaN(prev) && !math.IsNaN(curr) {
			values = append(values, (curr-prev)/prev)
		} else {
			values = append(values, 0.0)
		}
		dates = append(dates, prices.Dates[i])
	}

	return domain.Series{Dates: dates, Values: values}
}

// Diff converts a level series (e.g. yields in percentage units) into
// first differences, scaled by the given factor. A yield series in percent
// becomes decimal-unit Δy with scale 0.01.
func (b *Builder) Diff(levels domain.Series, scale float64) domain.Series {
	if levels.Len() < 2 {
		return domain.Series{Dates: []string{}, Values: []float64{}}
	}

	filled := forwardFill(levels.Values)

	dates := make([]string, 0, levels.Len()-1)
	values := make([]float64, 0, levels.Len()-1)
	for i := 1; i < len(filled); i++ {
		if math.IsNaN(filled[i]) || math.IsNaN(filled[i-1]) {
			values = append(values, 0.0)
		} else {
			values = append(values, (filled[i]-filled[i-1])*scale)
		}
		dates = append(dates, levels.Dates[i])
	}

	return domain.Series{Dates: dates, Values: values}
}

// forwardFill replaces NaN values with the last valid observation.
// Leading NaNs remain and are handled by the percent-change guard.
func forwardFill(values []float64) []float64 {
	filled := make([]float64, len(values))
	copy(filled, values)

	var lastValid float64
	hasLastValid := false
	for i := 0; i < len(filled); i++ {
		if math.IsNaN(filled[i]) {
			if hasLastValid {
				filled[i] = lastValid
			}
		} else {
			lastValid = filled[i]
			hasLastValid = true
		}
	}
	return filled
}

// AlignPair returns the values of two series restricted to their common
// dates, in ascending date order.
func AlignPair(a, b domain.Series) (av, bv []float64) {
	bIndex := make(map[string]int, b.Len())
	for i, d := range b.Dates {
		bIndex[d] = i
	}

	av = make([]float64, 0, a.Len())
	bv = make([]float64, 0, a.Len())
	for i, d := range a.Dates {
		if j, ok := bIndex[d]; ok {
			av = append(av, a.Values[i])
			bv = append(bv, b.Values[j])
		}
	}
	return av, bv
}

// AlignTable restricts a set of series to their common date window and
// returns one aligned table. Series with no overlap force an empty window.
func AlignTable(series map[string]domain.Series) domain.SeriesTable {
	table := domain.SeriesTable{Dates: []string{}, Data: make(map[string][]float64)}
	if len(series) == 0 {
		return table
	}

	// Count date occurrences; a common date appears in every series.
	counts := make(map[string]int)
	for _, s := range series {
		for _, d := range s.Dates {
			counts[d]++
		}
	}

	common := make([]string, 0, len(counts))
	for d, c := range counts {
		if c == len(series) {
			common = append(common, d)
		}
	}
	sort.Strings(common)
	table.Dates = common

	for name, s := range series {
		index := make(map[string]int, s.Len())
		for i, d := range s.Dates {
			index[d] = i
		}
		values := make([]float64, len(common))
		for i, d := range common {
			values[i] = s.Values[index[d]]
		}
		table.Data[name] = values
	}

	return table
}
