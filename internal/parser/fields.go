package parser

// FieldReplacements maps the verbose labels in BOM data file headers to short SQL-friendly names.
var FieldReplacements = map[string]string{
	"dc":             "DC",
	"hm":             "HM",
	"Station Number": "Station",
	"Year":           "Year",
	"Month":          "Month",
	"Day":            "Day",
	"Hour":           "Hour",
	"Minute":         "Minute",

	"Precipitation in the 24 hours before 9am (local time) in mm":                   "Rainfall",
	"Quality of precipitation value":                                                "QualityRainfall",
	"Number of days of rain within the days of accumulation":                        "AccumulationDaysRainfall",
	"Accumulated number of days over which the precipitation was measured":          "Period",
	"Maximum temperature in 24 hours after 9am (local time) in Degrees C":           "MaxTemp",
	"Quality of maximum temperature in 24 hours after 9am (local time)":             "QualityMaxTemp",
	"Days of accumulation of maximum temperature":                                   "AccumulationDaysMaxTemp",
	"Minimum temperature in 24 hours before 9am (local time) in Degrees C":          "MinTemp",
	"Quality of minimum temperature in 24 hours before 9am (local time)":            "QualityMinTemp",
	"Days of accumulation of minimum temperature":                                   "AccumulationDaysMinTemp",
	"Average daily air temperature (using all available observations) in Degrees C": "AverageTemp",
	"Quality of average daily temperature (sum_obs/count_obs)":                      "QualityAverageTemp",
	"Total daily global solar exposure - derived from satellite data in MJ.m-2":     "SolarExposure",
	"Quality Flag (refer to notes)":                                                 "QualitySolarExposure",
	"Air Temperature in degrees C":                                                  "AirTemp",
	"Quality of air temperature":                                                    "QualityAirTemp",
	"Dew point temperature in degrees C":                                            "DewPoint",
	"Quality of dew point temperature":                                              "QualityDewPoint",
	"Relative humidity in percentage %":                                             "Humidity",
	"Quality of relative humidity":                                                  "QualityHumidity",
	"Wind speed in km/h":                                                            "WindSpeed",
	"Wind speed quality":                                                            "QualityWindSpeed",
	"Wind direction in degrees true":                                                "WindDirection",
	"Wind direction quality":                                                        "QualityWindDirection",
	"Speed of maximum windgust in last 10 minutes in  km/h":                         "MaxWindGust",
	"Quality of speed of maximum windgust in last 10 minutes":                       "QualityMaxWindGust",
	"AWS Flag": "WeatherStationType",
	"#":        "Sentinel",

	// Produced by the aggregate-directory tool when it aggregates an already-maximal column.
	"MaxMaxWindGust": "MaxWindGust",
}

// StationFieldReplacements maps station details file headers to short names.
var StationFieldReplacements = map[string]string{
	"Record identifier":                                    "ID",
	"Bureau of Meteorology Station Number":                 "Site",
	"Rainfall district code":                               "District",
	"Station Name":                                         "Name",
	"Month/Year site opened. (MM/YYYY)":                    "Opened",
	"Month/Year site closed. (MM/YYYY)":                    "Closed",
	"Latitude to 4 decimal places in decimal degrees":      "Latitude",
	"Longitude to 4 decimal places in decimal degrees":     "Longitude",
	"Method by which latitude/longitude was derived":       "LocMethod",
	"State":                                                "State",
	"Height of station above mean sea level in metres":     "StationHeight",
	"Height of barometer above mean sea level in metres":   "BarometerHeight",
	"WMO (World Meteorological Organisation) Index Number": "WMOIndex",
	"First year of data supplied in data file":             "Start",
	"Last year of data supplied in data file":              "End",
	"Percentage complete between first and last records":   "Percent",
	"Percentage of values with quality flag 'Y'":           "PercentY",
	"Percentage of values with quality flag 'N'":           "PercentN",
	"Percentage of values with quality flag 'W'":           "PercentW",
	"Percentage of values with quality flag 'S'":           "PercentS",
	"Percentage of values with quality flag 'I'":           "PercentI",
}

// RenameFields rewrites the header row (rows[0]) in place. Unmapped labels pass through.
func RenameFields(rows [][]string, replacements map[string]string) {
	if len(rows) == 0 {
		return
	}

	header := rows[0]
	for i, label := range header {
		if name, ok := replacements[label]; ok {
			header[i] = name
		}
	}
}

// ColumnIndex returns the position of name in the header row, or -1.
func ColumnIndex(header []string, name string) int {
	for i, field := range header {
		if field == name {
			return i
		}
	}
	return -1
}
