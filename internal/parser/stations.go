package parser

import (
	"regexp"
	"strings"

	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

const siteDetailsMarker = "\nSITE DETAILS FILE"

var siteDetailsRow = regexp.MustCompile(`[0-9\- ]+,[0-9 ]+,([^\n]+)\n`)

// StationListHeader derives the station details header from the "SITE DETAILS FILE"
// section of a notes file.
func StationListHeader(notes string) ([]string, error) {
	notes = strings.ReplaceAll(notes, "\r\n", "\n")

	start := strings.Index(notes, siteDetailsMarker)
	if start < 0 {
		return nil, &models.ParseError{Message: "notes file has no SITE DETAILS FILE section"}
	}

	var header []string
	for _, match := range siteDetailsRow.FindAllStringSubmatch(notes[start:], -1) {
		field := strings.TrimSpace(match[1])
		field = strings.TrimSuffix(field, ".")
		field = strings.ReplaceAll(field, ",", "")
		header = append(header, field)
	}

	if len(header) == 0 {
		return nil, &models.ParseError{Message: "SITE DETAILS FILE section lists no fields"}
	}

	return header, nil
}

// ConcatenateStationLists merges several station details files under a single header built
// from the notes file, discarding each list's own header and note lines.
func ConcatenateStationLists(listFiles []string, notesFile string) (string, error) {
	notes, err := ReadText(notesFile)
	if err != nil {
		return "", err
	}

	header, err := StationListHeader(notes)
	if err != nil {
		return "", wrap.Errorf(err, "failed to build station list header from %s", notesFile)
	}

	rows := make([]string, 0, len(listFiles))
	for _, listFile := range listFiles {
		text, err := ReadText(listFile)
		if err != nil {
			return "", err
		}
		rows = append(rows, StripExtraneousLines(text, false))
	}

	return strings.Join(header, ",") + "\n" + strings.Join(rows, "\n"), nil
}
