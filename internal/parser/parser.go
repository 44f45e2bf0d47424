// Package parser reads the hybrid fixed-width/CSV text files supplied by the Bureau of
// Meteorology and the single-column station lists derived from them.
package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

// Transform rewrites raw file text before structural parsing.
type Transform func(raw string) string

const combinedTimestampLabel = "Year Month Day Hour Minutes in YYYY,MM,DD,HH24,MI format in Local standard time"

// BOMTransform prepares BOM-dialect text for CSV parsing: it strips quote characters,
// expands the combined timestamp label into separate columns and discards note lines.
func BOMTransform(raw string) string {
	transformed := strings.ReplaceAll(raw, `"`, "")
	transformed = strings.Replace(transformed, combinedTimestampLabel, "Year,Month,Day,Hour,Minute", 1)
	return StripExtraneousLines(transformed, true)
}

// ReadText reads a whole file as UTF-8, dropping any byte-order mark.
func ReadText(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", wrap.Errorf(err, "failed to open %s", path)
	}
	defer file.Close()

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(file, decoder))
	if err != nil {
		return "", wrap.Errorf(err, "failed to read %s", path)
	}

	return string(data), nil
}

// ParseFile parses a comma-delimited file, applying transform (if non-nil) to the raw text first.
func ParseFile(path string, transform Transform) ([][]string, error) {
	text, err := ReadText(path)
	if err != nil {
		return nil, err
	}

	rows, err := Parse(text, transform)
	if err != nil {
		var parseErr *models.ParseError
		if errors.As(err, &parseErr) {
			parseErr.File = path
		}
		return nil, err
	}

	return rows, nil
}

// Parse parses comma-delimited text. Every row must have the same number of fields as the first.
func Parse(text string, transform Transform) ([][]string, error) {
	if transform != nil {
		text = transform(text)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = 0

	rows, err := reader.ReadAll()
	if err != nil {
		parseErr := &models.ParseError{Message: "malformed CSV data", Err: err}
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			parseErr.Line = csvErr.Line
		}
		return nil, parseErr
	}

	return rows, nil
}

// ParseBOM parses a BOM-dialect file and trims the fixed-width padding from every field.
func ParseBOM(path string) ([][]string, error) {
	rows, err := ParseFile(path, BOMTransform)
	if err != nil {
		return nil, err
	}

	trimFields(rows)
	return rows, nil
}

// ParseBOMText is ParseBOM over text already in memory.
func ParseBOMText(text string) ([][]string, error) {
	rows, err := Parse(text, BOMTransform)
	if err != nil {
		return nil, err
	}

	trimFields(rows)
	return rows, nil
}

func trimFields(rows [][]string) {
	for _, row := range rows {
		for i, field := range row {
			row[i] = strings.TrimSpace(field)
		}
	}
}

// ParseList parses a headerless, single-column file and returns its values in order.
func ParseList(path string) ([]string, error) {
	text, err := ReadText(path)
	if err != nil {
		return nil, err
	}

	values, err := ParseListText(text)
	if err != nil {
		var parseErr *models.ParseError
		if errors.As(err, &parseErr) {
			parseErr.File = path
		}
		return nil, err
	}

	return values, nil
}

// ParseListText is ParseList over text already in memory.
func ParseListText(text string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	var values []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &models.ParseError{Message: "malformed CSV data", Err: err}
		}

		if len(row) != 1 {
			line, _ := reader.FieldPos(0)
			return nil, &models.ParseError{Line: line, Message: "CSV file contains more than one column"}
		}
		values = append(values, row[0])
	}

	return values, nil
}

// ParseLists concatenates the values of several single-column files, in argument order.
func ParseLists(paths ...string) ([]string, error) {
	var values []string
	for _, path := range paths {
		list, err := ParseList(path)
		if err != nil {
			return nil, err
		}
		values = append(values, list...)
	}
	return values, nil
}
