package services

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/query"
)

type summary struct {
	lines []string
}

func (s *summary) heading(text string) {
	s.lines = append(s.lines, text, strings.Repeat("=", len(text)), "")
}

func (s *summary) subHeading(text string) {
	s.lines = append(s.lines, "", text, strings.Repeat("-", len(text)), "")
}

func (s *summary) add(lines ...string) {
	s.lines = append(s.lines, lines...)
}

// Summary renders the human-readable description of an export: the dataset's request and, when
// q is non-nil, the query text and parameters
func Summary(dataset *models.Dataset, q *query.Query) string {
	var s summary

	title := `Export of dataset "` + dataset.Name + `"`
	if q != nil {
		title += ` with query "` + q.Name + `"`
	}
	s.heading(title)

	s.subHeading("Dataset details")
	s.add(
		"Start Year: "+strconv.Itoa(dataset.Request.StartYear),
		"End Year:   "+strconv.Itoa(dataset.Request.EndYear),
		"",
		"Measures:",
	)
	for _, code := range dataset.Request.Codes {
		s.add("\t" + code.String())
	}

	stations := make([]string, len(dataset.Request.Stations))
	for i, station := range dataset.Request.Stations {
		stations[i] = strconv.Itoa(station)
	}
	s.add("", "Stations:", strings.Join(stations, ", "), "")

	if q != nil {
		s.subHeading("Query details")
		s.add("Query string:", "", q.GenerateSQL(), "", "Query parameters:")
		for _, p := range q.Parameters {
			encoded, err := json.Marshal(p.Value)
			if err != nil {
				encoded = []byte(p.Value.String())
			}
			s.add("\t" + p.Name + ": " + string(encoded))
		}
		s.add("")
	}

	return strings.Join(s.lines, "\n")
}

// WriteSummary writes Summary(dataset, q) to path
func WriteSummary(path string, dataset *models.Dataset, q *query.Query) error {
	if err := os.WriteFile(path, []byte(Summary(dataset, q)), 0o644); err != nil {
		return wrap.Errorf(err, "failed to write export summary '%s'", path)
	}
	return nil
}
