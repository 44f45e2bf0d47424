package parser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"hermannm.dev/wrap"
)

// WriteCSV writes rows as standard CSV.
func WriteCSV(w io.Writer, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return wrap.Error(err, "failed to write CSV rows")
	}
	return nil
}

// WriteCSVFile writes rows as standard CSV to path, replacing any existing file.
func WriteCSVFile(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return wrap.Errorf(err, "failed to create %s", path)
	}

	if err := WriteCSV(file, rows); err != nil {
		file.Close()
		return err
	}

	return file.Close()
}

// WriteFixedWidthCSV writes rows in the BOM fixed-width dialect: every field is padded to its
// column's widest value, so all lines share one length and read back through ParseBOM.
func WriteFixedWidthCSV(path string, rows [][]string) error {
	widths := make([]int, 0)
	for _, row := range rows {
		for i, field := range row {
			if strings.ContainsAny(field, ",\"\r\n") {
				return fmt.Errorf("field %q cannot be written in fixed-width format", field)
			}
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], utf8.RuneCountInString(field))
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return wrap.Errorf(err, "failed to create %s", path)
	}

	out := bufio.NewWriter(file)
	padded := make([]string, len(widths))
	for _, row := range rows {
		for i := range widths {
			field := ""
			if i < len(row) {
				field = row[i]
			}
			padded[i] = field + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(field))
		}
		out.WriteString(strings.Join(padded, ","))
		out.WriteString("\n")
	}

	if err := out.Flush(); err != nil {
		file.Close()
		return wrap.Errorf(err, "failed to write %s", path)
	}

	return file.Close()
}
