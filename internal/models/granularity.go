package models

import (
	"slices"

	"hermannm.dev/enumnames"
)

// Granularity is the finest time unit represented by a table's rows.
// Values are ordered from coarsest to finest; Unknown sorts below everything.
type Granularity int8

const (
	GranularityUnknown Granularity = -1
	GranularityYear    Granularity = 0
	GranularityMonth   Granularity = 1
	GranularityDay     Granularity = 2
	GranularityHour    Granularity = 3
	GranularityMinute  Granularity = 4
	GranularitySecond  Granularity = 5
)

var granularityNames = enumnames.NewMap(map[Granularity]string{
	GranularityYear:    "Yearly",
	GranularityMonth:   "Monthly",
	GranularityDay:     "Daily",
	GranularityHour:    "Hourly",
	GranularityMinute:  "Per Minute",
	GranularitySecond:  "Per Second",
	GranularityUnknown: "Unknown",
})

// timeColumns pairs each granularity with the column that implies it, finest first.
var timeColumns = []struct {
	column      string
	granularity Granularity
}{
	{"Second", GranularitySecond},
	{"Minute", GranularityMinute},
	{"Hour", GranularityHour},
	{"Day", GranularityDay},
	{"Month", GranularityMonth},
	{"Year", GranularityYear},
}

// ValidGranularities lists every granularity except Unknown, coarsest first.
func ValidGranularities() []Granularity {
	return []Granularity{
		GranularityYear,
		GranularityMonth,
		GranularityDay,
		GranularityHour,
		GranularityMinute,
		GranularitySecond,
	}
}

func (g Granularity) String() string {
	return granularityNames.GetNameOrFallback(g, "Unknown")
}

func (g Granularity) IsValid() bool {
	return g != GranularityUnknown && slices.Contains(ValidGranularities(), g)
}

func (g Granularity) MarshalJSON() ([]byte, error) {
	return granularityNames.MarshalToNameJSON(g)
}

func (g *Granularity) UnmarshalJSON(bytes []byte) error {
	return granularityNames.UnmarshalFromNameJSON(bytes, g)
}

// IsCoarserThan reports whether g represents a strictly longer time unit than other.
func (g Granularity) IsCoarserThan(other Granularity) bool {
	if !g.IsValid() || !other.IsValid() {
		return false
	}
	return g < other
}

// ParseGranularity maps a display name back to its value, or Unknown.
func ParseGranularity(name string) Granularity {
	for _, g := range ValidGranularities() {
		if g.String() == name {
			return g
		}
	}
	return GranularityUnknown
}

// DetectGranularity returns the finest granularity implied by the time columns present
// in a normalized header row.
func DetectGranularity(columns []string) Granularity {
	for _, tc := range timeColumns {
		if slices.Contains(columns, tc.column) {
			return tc.granularity
		}
	}
	return GranularityUnknown
}

// CommonFields returns the join-key prefix shared by every table of the given granularity.
func CommonFields(g Granularity) []string {
	fields := []string{"Station"}
	if !g.IsValid() {
		return fields
	}

	ordered := []string{"Year", "Month", "Day", "Hour", "Minute", "Second"}
	return append(fields, ordered[:int(g)+1]...)
}
