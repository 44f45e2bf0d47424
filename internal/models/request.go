package models

import (
	"slices"
)

// AllYears disables year filtering when used as either end of a request's range.
const AllYears = 0

// AllStations is the empty station set, which keeps every station.
var AllStations []int

// DataRequest describes which stations, measures and years a dataset build should extract.
type DataRequest struct {
	Stations   []int                      `json:"stations"`
	Codes      []MeasurementCode          `json:"measurementCodes"`
	SourceDirs map[MeasurementCode]string `json:"sourceDirs,omitempty"`
	StartYear  int                        `json:"startYear"`
	EndYear    int                        `json:"endYear"`
}

// NewDataRequest constructs a request, failing when a code has no source directory
// or the year range is inverted.
func NewDataRequest(stations []int, codes []MeasurementCode, sourceDirs map[MeasurementCode]string, startYear, endYear int) (*DataRequest, error) {
	request := &DataRequest{
		Stations:   slices.Clone(stations),
		Codes:      slices.Clone(codes),
		SourceDirs: make(map[MeasurementCode]string, len(sourceDirs)),
		StartYear:  startYear,
		EndYear:    endYear,
	}
	for code, dir := range sourceDirs {
		request.SourceDirs[code] = dir
	}

	if err := request.Validate(); err != nil {
		return nil, err
	}

	return request, nil
}

// Validate checks every construction invariant.
func (r *DataRequest) Validate() error {
	if len(r.Codes) == 0 {
		return &ValidationError{
			Field:   "measurementCodes",
			Message: "At least one measure must be selected",
		}
	}

	for _, code := range r.Codes {
		if !code.IsValid() {
			return &ValidationError{
				Field:   "measurementCodes",
				Value:   code.String(),
				Message: "Unknown measure selected: " + code.String(),
			}
		}
	}

	if err := r.CheckSources(); err != nil {
		return err
	}

	return r.CheckYearRange()
}

// CheckSources verifies that every selected code has a non-empty source directory.
func (r *DataRequest) CheckSources() error {
	for _, code := range r.Codes {
		if dir, ok := r.SourceDirs[code]; !ok || dir == "" {
			return &ValidationError{
				Field:   "sourceDirs",
				Value:   code.String(),
				Message: "Source directories must be specified for all selected measures",
			}
		}
	}
	return nil
}

// CheckYearRange verifies that StartYear <= EndYear unless either is AllYears.
func (r *DataRequest) CheckYearRange() error {
	if r.AllYears() {
		return nil
	}
	if r.StartYear > r.EndYear {
		return &ValidationError{
			Field:   "endYear",
			Value:   "",
			Message: "End year must be greater than or equal to start year",
		}
	}
	return nil
}

// AllYears reports whether the request disables year filtering.
func (r *DataRequest) AllYears() bool {
	return r.StartYear == AllYears || r.EndYear == AllYears
}

// KeepsStation reports whether rows for the station pass the request's station filter.
func (r *DataRequest) KeepsStation(station int) bool {
	return len(r.Stations) == 0 || slices.Contains(r.Stations, station)
}

// KeepsYear reports whether rows for the year pass the request's year filter.
func (r *DataRequest) KeepsYear(year int) bool {
	return r.AllYears() || (year >= r.StartYear && year <= r.EndYear)
}

// HasCode reports whether the request includes the code.
func (r *DataRequest) HasCode(code MeasurementCode) bool {
	return slices.Contains(r.Codes, code)
}
