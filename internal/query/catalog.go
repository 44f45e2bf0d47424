package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

// Catalog is the fixed registry of analytical queries
type Catalog struct {
	queries []*Query
}

// NewCatalog returns the catalog of built-in queries
func NewCatalog() *Catalog {
	return &Catalog{queries: builtinQueries()}
}

func threshold() models.Parameters {
	return models.Parameters{{Name: "$threshold", Value: models.NumberValue(0)}}
}

func bounds() models.Parameters {
	return models.Parameters{
		{Name: "$lowerBound", Value: models.NumberValue(0)},
		{Name: "$upperBound", Value: models.NumberValue(0)},
	}
}

func builtinQueries() []*Query {
	rainfall := []models.MeasurementCode{models.Rainfall}
	temperature := []models.MeasurementCode{models.MinMaxMeanTemperature}
	solar := []models.MeasurementCode{models.SolarExposure}

	return []*Query{
		{
			Name:                "Average daily rainfall",
			Select:              "SELECT AVG(Rainfall) as AverageRainfall FROM dataset",
			Where:               []string{"Rainfall != ''"},
			RequiredCodes:       rainfall,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Total rainfall",
			Select:              "SELECT SUM(Rainfall) as TotalRainfall FROM dataset",
			Where:               []string{"Rainfall != ''"},
			RequiredCodes:       rainfall,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Number of days with no rainfall",
			Select:              "SELECT COUNT(*) as NumDays FROM dataset",
			Where:               []string{"Rainfall != ''", "Rainfall = 0.0"},
			RequiredCodes:       rainfall,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Number of days with rainfall above threshold",
			Select:              "SELECT COUNT(*) as NumDays FROM dataset",
			Where:               []string{"Rainfall != ''", "Rainfall > $threshold"},
			Parameters:          threshold(),
			RequiredCodes:       rainfall,
			RequiredGranularity: models.GranularityDay,
		},

		{
			Name:                "Average maximum daily temperature",
			Select:              "SELECT AVG(MaxTemp) as AverageMaxTemp FROM dataset",
			Where:               []string{"MaxTemp != ''"},
			RequiredCodes:       temperature,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Average minimum daily temperature",
			Select:              "SELECT AVG(MinTemp) as AverageMinTemp FROM dataset",
			Where:               []string{"MinTemp != ''"},
			RequiredCodes:       temperature,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Number of days with maximum temperature above threshold",
			Select:              "SELECT COUNT(*) as NumDays FROM dataset",
			Where:               []string{"MaxTemp != ''", "MaxTemp > $threshold"},
			Parameters:          threshold(),
			RequiredCodes:       temperature,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Number of days with minimum temperature below threshold",
			Select:              "SELECT COUNT(*) as NumDays FROM dataset",
			Where:               []string{"MinTemp != ''", "MinTemp < $threshold"},
			Parameters:          threshold(),
			RequiredCodes:       temperature,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:   "Number of days with temperature within range",
			Select: "SELECT COUNT(*) as NumDays FROM dataset",
			Where: []string{
				"MinTemp != ''",
				"MaxTemp != ''",
				"MinTemp > $lowerBound",
				"MaxTemp < $upperBound",
			},
			Parameters:          bounds(),
			RequiredCodes:       temperature,
			RequiredGranularity: models.GranularityDay,
		},

		{
			Name:                "Average daily solar exposure",
			Select:              "SELECT AVG(SolarExposure) as AverageSolarExposure FROM dataset",
			Where:               []string{"SolarExposure != ''"},
			RequiredCodes:       solar,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Number of days with solar exposure above threshold",
			Select:              "SELECT COUNT(*) as NumDays FROM dataset",
			Where:               []string{"SolarExposure != ''", "SolarExposure > $threshold"},
			Parameters:          threshold(),
			RequiredCodes:       solar,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:                "Number of days with solar exposure below threshold",
			Select:              "SELECT COUNT(*) as NumDays FROM dataset",
			Where:               []string{"SolarExposure != ''", "SolarExposure < $threshold"},
			Parameters:          threshold(),
			RequiredCodes:       solar,
			RequiredGranularity: models.GranularityDay,
		},
		{
			Name:   "Number of days with solar exposure within range",
			Select: "SELECT COUNT(*) as NumDays FROM dataset",
			Where: []string{
				"SolarExposure != ''",
				"SolarExposure > $lowerBound",
				"SolarExposure < $upperBound",
			},
			Parameters:          bounds(),
			RequiredCodes:       solar,
			RequiredGranularity: models.GranularityDay,
		},
	}
}

// All returns clones of every query in the catalog
func (c *Catalog) All() []*Query {
	out := make([]*Query, len(c.queries))
	for i, q := range c.queries {
		out[i] = q.Clone()
	}
	return out
}

// Supported returns clones of the queries whose required codes are all present in the dataset
// and whose required granularity equals the dataset's granularity.
func (c *Catalog) Supported(dataset *models.Dataset) []*Query {
	var out []*Query
	for _, q := range c.queries {
		if q.RequiredGranularity != dataset.Granularity {
			continue
		}

		covered := true
		for _, code := range q.RequiredCodes {
			if !slices.Contains(dataset.Request.Codes, code) {
				covered = false
				break
			}
		}
		if covered {
			out = append(out, q.Clone())
		}
	}
	return out
}

// Find returns a clone of the named query. Matching ignores case.
func (c *Catalog) Find(name string) (*Query, bool) {
	for _, q := range c.queries {
		if strings.EqualFold(q.Name, name) {
			return q.Clone(), true
		}
	}
	return nil, false
}

// FindFor returns a clone of the named query after checking the dataset can run it
func (c *Catalog) FindFor(name string, dataset *models.Dataset) (*Query, error) {
	q, ok := c.Find(name)
	if !ok {
		return nil, &models.NotFoundError{Resource: "query", ID: name}
	}

	for _, supported := range c.Supported(dataset) {
		if supported.Name == q.Name {
			return q, nil
		}
	}
	return nil, &models.ValidationError{
		Field:   "query",
		Value:   name,
		Message: fmt.Sprintf("query %q is not supported by dataset %q", q.Name, dataset.Name),
	}
}
