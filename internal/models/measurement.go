package models

import (
	"fmt"
	"strconv"
	"strings"

	"hermannm.dev/enumnames"
)

// MeasurementCode identifies one class of recorded observation.
// The numeric value doubles as the suffix of the per-code ingestion table.
type MeasurementCode int

const (
	MinMaxMeanTemperature  MeasurementCode = 122123
	Rainfall               MeasurementCode = 136
	SolarExposure          MeasurementCode = 193
	WindDewHumidityAirTemp MeasurementCode = 2
)

var measurementCodeNames = enumnames.NewMap(map[MeasurementCode]string{
	MinMaxMeanTemperature:  "Min/Max/Mean Temperature",
	Rainfall:               "Rainfall",
	SolarExposure:          "Solar Exposure",
	WindDewHumidityAirTemp: "Wind / Dew Point / Humidity / Air Temperature",
})

// AllMeasurementCodes returns every supported code in display order.
func AllMeasurementCodes() []MeasurementCode {
	return []MeasurementCode{
		MinMaxMeanTemperature,
		Rainfall,
		SolarExposure,
		WindDewHumidityAirTemp,
	}
}

func (code MeasurementCode) IsValid() bool {
	_, ok := measurementCodeNames.GetName(code)
	return ok
}

func (code MeasurementCode) String() string {
	return measurementCodeNames.GetNameOrFallback(code, "Unknown measure "+strconv.Itoa(int(code)))
}

// ParseMeasurementCode accepts either the numeric code or its display name.
func ParseMeasurementCode(s string) (MeasurementCode, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		code := MeasurementCode(n)
		if !code.IsValid() {
			return 0, &ValidationError{Field: "measurementCode", Value: s, Message: fmt.Sprintf("unknown measurement code %d", n)}
		}
		return code, nil
	}

	for _, code := range AllMeasurementCodes() {
		if strings.EqualFold(code.String(), s) {
			return code, nil
		}
	}

	return 0, &ValidationError{Field: "measurementCode", Value: s, Message: fmt.Sprintf("unknown measurement %q", s)}
}

// QualityFields lists the quality-flag columns that accompany a code's observations.
func (code MeasurementCode) QualityFields() []string {
	switch code {
	case Rainfall:
		return []string{"QualityRainfall"}
	case MinMaxMeanTemperature:
		return []string{"QualityMaxTemp", "QualityMinTemp"}
	case SolarExposure:
		return []string{"QualitySolarExposure"}
	case WindDewHumidityAirTemp:
		return []string{
			"QualityAirTemp",
			"QualityDewPoint",
			"QualityHumidity",
			"QualityWindSpeed",
			"QualityWindDirection",
			"QualityMaxWindGust",
		}
	default:
		return nil
	}
}
