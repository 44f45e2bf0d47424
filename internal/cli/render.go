package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/query"
)

func newTable(w io.Writer, header ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

func measureNames(codes []models.MeasurementCode) string {
	names := make([]string, len(codes))
	for i, code := range codes {
		names[i] = code.String()
	}
	return strings.Join(names, ", ")
}

func stationList(stations []int) string {
	if len(stations) == 0 {
		return "all"
	}
	out := make([]string, len(stations))
	for i, s := range stations {
		out[i] = strconv.Itoa(s)
	}
	return strings.Join(out, ", ")
}

func yearSpan(request models.DataRequest) string {
	if request.AllYears() {
		return "all"
	}
	return fmt.Sprintf("%d-%d", request.StartYear, request.EndYear)
}

func renderDatasets(w io.Writer, datasets []*models.Dataset) {
	if len(datasets) == 0 {
		fmt.Fprintln(w, "(no datasets)")
		return
	}

	t := newTable(w, "ID", "Name", "Granularity", "Measures", "Stations", "Years", "Created", "% Present")
	for _, d := range datasets {
		t.AppendRow(table.Row{
			d.ID,
			d.Name,
			d.Granularity.String(),
			measureNames(d.Request.Codes),
			stationList(d.Request.Stations),
			yearSpan(d.Request),
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.2f", d.PercentPresent),
		})
	}
	t.Render()
}

func renderValidation(w io.Writer, report *models.ValidationReport) {
	t := newTable(w, "Station", "Measure", "First Year", "Last Year", "Supported")
	for _, item := range report.Details {
		supported := "yes"
		if !item.Supported {
			supported = "NO"
		}
		t.AppendRow(table.Row{item.Station, item.Code.String(), item.Start, item.End, supported})
	}
	t.Render()
}

func renderPresence(w io.Writer, report models.PresenceReport) {
	if len(report) == 0 {
		fmt.Fprintln(w, "(no quality-approved data)")
		return
	}

	stations := make([]int, 0, len(report))
	for station := range report {
		stations = append(stations, station)
	}
	sort.Ints(stations)

	t := newTable(w, "Station", "Year", "% Present")
	for _, station := range stations {
		years := make([]int, 0, len(report[station]))
		for year := range report[station] {
			years = append(years, year)
		}
		sort.Ints(years)

		for _, year := range years {
			t.AppendRow(table.Row{station, year, fmt.Sprintf("%.2f", report[station][year])})
		}
	}
	t.Render()
}

func renderQueries(w io.Writer, queries []*query.Query) {
	if len(queries) == 0 {
		fmt.Fprintln(w, "(no queries)")
		return
	}

	t := newTable(w, "Name", "Measures", "Granularity", "Parameters")
	for _, q := range queries {
		params := make([]string, len(q.Parameters))
		for i, p := range q.Parameters {
			params[i] = strings.TrimPrefix(p.Name, "$") + "=" + p.Value.String()
		}
		t.AppendRow(table.Row{q.Name, measureNames(q.RequiredCodes), q.RequiredGranularity.String(), strings.Join(params, ", ")})
	}
	t.Render()
}
