package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const rainfallSample = "\"Product code\",\"Station Number\",\"Year\",\"Month\",\"Day\",\"Precipitation in the 24 hours before 9am (local time) in mm\",\"Quality of precipitation value\"\n" +
	"IDCJAC0009,009021,2000,01,01,  0.0,Y\n" +
	"IDCJAC0009,009021,2000,01,02, 12.4,Y\n" +
	"IDCJAC0009,009021,2000,01,03,     ,N\n" +
	"Data supplied by the Bureau of Meteorology\n"

func TestStripExtraneousLines(t *testing.T) {
	t.Run("keeps modal length lines only", func(t *testing.T) {
		row := strings.Repeat("x", 24) + "," + strings.Repeat("y", 25)
		lines := []string{row, row, row, "short note", row}

		got := StripExtraneousLines(strings.Join(lines, "\n"), false)

		assert.Equal(t, strings.Join([]string{row, row, row, row}, "\n"), got)
	})

	t.Run("keeps header above first data row", func(t *testing.T) {
		text := "Name,Value\nalpha,001\nbravo,002\n"

		got := StripExtraneousLines(text, true)

		assert.Equal(t, "Name,Value\nalpha,001\nbravo,002", got)
	})

	t.Run("drops header candidate with wrong comma count", func(t *testing.T) {
		text := "Note line without commas\nalpha,001\nbravo,002\n"

		got := StripExtraneousLines(text, true)

		assert.Equal(t, "alpha,001\nbravo,002", got)
	})

	t.Run("header dropped when not requested", func(t *testing.T) {
		text := "Name,Value\nalpha,001\nbravo,002\n"

		got := StripExtraneousLines(text, false)

		assert.Equal(t, "alpha,001\nbravo,002", got)
	})
}

func TestModalLength(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  int
	}{
		{name: "clear mode", lines: []string{"aaaa", "bbbb", "cc"}, want: 4},
		{name: "tie goes to longest", lines: []string{"aa", "bb", "cccc", "dddd"}, want: 4},
		{name: "counts runes", lines: []string{"°C,1", "°C,2", "abcdef"}, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, modalLength(tt.lines))
		})
	}
}

func TestParseBOMText(t *testing.T) {
	rows, err := ParseBOMText(rainfallSample)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{
		"Product code",
		"Station Number",
		"Year",
		"Month",
		"Day",
		"Precipitation in the 24 hours before 9am (local time) in mm",
		"Quality of precipitation value",
	}, rows[0])
	assert.Equal(t, []string{"IDCJAC0009", "009021", "2000", "01", "01", "0.0", "Y"}, rows[1])
	assert.Equal(t, "", rows[3][5])
}

func TestParseBOMText_CombinedTimestamp(t *testing.T) {
	text := "hm,Station Number,Year Month Day Hour Minutes in YYYY,MM,DD,HH24,MI format in Local standard time,Air Temperature in degrees C\n" +
		"hm,009021,2000,01,01,09,00, 21.5\n" +
		"hm,009021,2000,01,01,09,30, 22.0\n"

	rows, err := ParseBOMText(text)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"hm", "Station Number", "Year", "Month", "Day", "Hour", "Minute", "Air Temperature in degrees C"}, rows[0])
	assert.Equal(t, "30", rows[2][6])
}

func TestParse_FieldCountMismatch(t *testing.T) {
	_, err := Parse("a,b\n1,2,3\n", nil)
	require.Error(t, err)

	var parseErr *models.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 2, parseErr.Line)
}

func TestParseFile_RecordsPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.csv", "a,b\n1,2,3\n")

	_, err := ParseFile(path, nil)

	var parseErr *models.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, path, parseErr.File)
}

func TestReadText_StripsByteOrderMark(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bom.csv", "\xef\xbb\xbfa,b\n")

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", text)
}

func TestParseLists(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.csv", "1\n2\n3\n")
	second := writeFile(t, dir, "second.csv", "4\n5\n")

	values, err := ParseLists(first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, values)
}

func TestParseList_MultipleColumns(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wide.csv", "1\n2,3\n")

	_, err := ParseList(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CSV file contains more than one column")
	assert.Contains(t, err.Error(), path)
}

func TestRenameFields(t *testing.T) {
	rows := [][]string{
		{"Product code", "Station Number", "Year", "Quality of precipitation value", "#"},
		{"IDCJAC0009", "009021", "2000", "Y", "#"},
	}

	RenameFields(rows, FieldReplacements)

	assert.Equal(t, []string{"Product code", "Station", "Year", "QualityRainfall", "Sentinel"}, rows[0])
	assert.Equal(t, "#", rows[1][4], "data rows are untouched")
}

const notesSample = "Notes about the data\r\n" +
	"\r\n" +
	"SITE DETAILS FILE\r\n" +
	"  1-  2, 2,Record identifier\r\n" +
	"  4-  9, 6,Bureau of Meteorology Station Number.\r\n" +
	" 11- 50,40,Station Name, with details.\r\n"

func TestStationListHeader(t *testing.T) {
	header, err := StationListHeader(notesSample)
	require.NoError(t, err)
	assert.Equal(t, []string{"Record identifier", "Bureau of Meteorology Station Number", "Station Name with details"}, header)

	_, err = StationListHeader("no details here\n")
	var parseErr *models.ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestConcatenateStationLists(t *testing.T) {
	dir := t.TempDir()
	notes := writeFile(t, dir, "IDCJAC0009_Notes_1.txt", notesSample)
	first := writeFile(t, dir, "IDCJAC0009_StnDet_1.txt", "header,ignored,here,please\nst,009021,PERTH AIRPORT \nst,009034,PERTH REGIONAL\n")
	second := writeFile(t, dir, "IDCJAC0009_StnDet_2.txt", "st,086071,MELBOURNE CBD \nst,086282,MELBOURNE AIR \n")

	text, err := ConcatenateStationLists([]string{first, second}, notes)
	require.NoError(t, err)

	lines := strings.Split(text, "\n")
	assert.Equal(t, "Record identifier,Bureau of Meteorology Station Number,Station Name with details", lines[0])
	assert.Equal(t, []string{
		"st,009021,PERTH AIRPORT ",
		"st,009034,PERTH REGIONAL",
		"st,086071,MELBOURNE CBD ",
		"st,086282,MELBOURNE AIR ",
	}, lines[1:])
}

func TestDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "IDCJAC0009_009021_1800_Data_1.txt", "")
	writeFile(t, dir, "IDCJAC0009_009034_1800_Data_1.txt", "")
	writeFile(t, dir, "IDCJAC0009_Notes_1.txt", "")

	data, err := DataFiles(dir)
	require.NoError(t, err)
	assert.Len(t, data, 2)

	notes, err := NotesFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "IDCJAC0009_Notes_1.txt"), notes)

	_, err = StationDetailsFile(dir)
	var discoveryErr *models.FileDiscoveryError
	require.True(t, errors.As(err, &discoveryErr))
	assert.Equal(t, 0, discoveryErr.Found)

	_, err = DataFiles(t.TempDir())
	assert.True(t, errors.As(err, &discoveryErr))
}

func TestWriteFixedWidthCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agg_Data_1.txt")
	rows := [][]string{
		{"Station Number", "Year", "Month", "Rainfall"},
		{"9021", "2000", "1", "12.5"},
		{"9021", "2000", "12", "0"},
	}

	require.NoError(t, WriteFixedWidthCSV(path, rows))

	parsed, err := ParseBOM(path)
	require.NoError(t, err)
	assert.Equal(t, rows, parsed)

	err = WriteFixedWidthCSV(path, [][]string{{"a,b"}})
	assert.Error(t, err)
}
