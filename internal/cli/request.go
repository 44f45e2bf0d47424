package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

// requestFlags collects a data request from the command line. Measures are given as
// CODE=DIR pairs and keep their command-line order.
type requestFlags struct {
	stations  []int
	measures  []string
	startYear int
	endYear   int
}

func addRequestFlags(fs *pflag.FlagSet, f *requestFlags) {
	fs.IntSliceVarP(&f.stations, "station", "s", nil, "Station number to extract (repeatable; default: every station)")
	fs.StringArrayVarP(&f.measures, "measure", "m", nil, `Measure and its source directory as CODE=DIR, where CODE is a number or a name such as "Rainfall" (repeatable)`)
	fs.IntVar(&f.startYear, "start-year", models.AllYears, "First year to extract (0 for every year)")
	fs.IntVar(&f.endYear, "end-year", models.AllYears, "Last year to extract (0 for every year)")
}

func (f *requestFlags) build() (*models.DataRequest, error) {
	codes := make([]models.MeasurementCode, 0, len(f.measures))
	sources := make(map[models.MeasurementCode]string, len(f.measures))

	for _, measure := range f.measures {
		name, dir, ok := strings.Cut(measure, "=")
		if !ok || strings.TrimSpace(dir) == "" {
			return nil, &models.ValidationError{
				Field:   "measure",
				Value:   measure,
				Message: fmt.Sprintf("measure %q must have the form CODE=DIR", measure),
			}
		}

		code, err := models.ParseMeasurementCode(name)
		if err != nil {
			return nil, err
		}
		if _, seen := sources[code]; seen {
			return nil, &models.ValidationError{
				Field:   "measure",
				Value:   measure,
				Message: fmt.Sprintf("measure %s given more than once", code),
			}
		}

		codes = append(codes, code)
		sources[code] = strings.TrimSpace(dir)
	}

	return models.NewDataRequest(f.stations, codes, sources, f.startYear, f.endYear)
}

// parseYearMonth accepts YYYY-MM, or YYYY meaning the given default month
func parseYearMonth(s string, defaultMonth int) (year, month int, err error) {
	yearText, monthText, hasMonth := strings.Cut(strings.TrimSpace(s), "-")

	year, err = strconv.Atoi(yearText)
	if err != nil {
		return 0, 0, &models.ValidationError{Field: "time range", Value: s, Message: fmt.Sprintf("invalid year in %q", s)}
	}

	month = defaultMonth
	if hasMonth {
		month, err = strconv.Atoi(monthText)
		if err != nil || month < 1 || month > 12 {
			return 0, 0, &models.ValidationError{Field: "time range", Value: s, Message: fmt.Sprintf("invalid month in %q", s)}
		}
	}
	return year, month, nil
}

// parseAssignment splits NAME=VALUE
func parseAssignment(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return "", "", &models.ValidationError{Field: "parameter", Value: s, Message: fmt.Sprintf("%q must have the form NAME=VALUE", s)}
	}
	return strings.TrimSpace(name), value, nil
}
