// Package query models the parameterised SQL queries that can be run against a built dataset.
package query

import (
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

// Parameter names registered by ApplyTimeRange
const (
	ParamDecimalYearStart = "$decimalYearStart"
	ParamDecimalYearEnd   = "$decimalYearEnd"
)

const (
	timeRangeClause = "(Year + ((Month - 1.0) / 12.0)) BETWEEN " + ParamDecimalYearStart + " AND " + ParamDecimalYearEnd
	yearRangeClause = "Year BETWEEN " + ParamDecimalYearStart + " AND " + ParamDecimalYearEnd
)

var selectKeyword = regexp.MustCompile(`(?i)SELECT `)

// Query is a parameterised SELECT against the dataset table. Where clauses are ANDed together;
// GroupBy fields, when set, become leading result columns, the GROUP BY list and the ORDER BY list.
type Query struct {
	Name                string                   `json:"name"`
	Select              string                   `json:"select"`
	Where               []string                 `json:"where"`
	GroupBy             []string                 `json:"groupBy,omitempty"`
	Parameters          models.Parameters        `json:"parameters"`
	RequiredCodes       []models.MeasurementCode `json:"requiredCodes"`
	RequiredGranularity models.Granularity       `json:"requiredGranularity"`
}

// Clone returns a deep copy; mutating it never affects q.
func (q *Query) Clone() *Query {
	return &Query{
		Name:                q.Name,
		Select:              q.Select,
		Where:               slices.Clone(q.Where),
		GroupBy:             slices.Clone(q.GroupBy),
		Parameters:          q.Parameters.Clone(),
		RequiredCodes:       slices.Clone(q.RequiredCodes),
		RequiredGranularity: q.RequiredGranularity,
	}
}

// SetParameter replaces a declared parameter. The value must have the declared kind.
func (q *Query) SetParameter(name string, value models.Value) error {
	current, ok := q.Parameters.Get(name)
	if !ok {
		return &models.ValidationError{
			Field:   name,
			Message: fmt.Sprintf("query %q has no parameter %q", q.Name, name),
		}
	}

	if current.Kind() != value.Kind() {
		return &models.ValidationError{
			Field:   name,
			Value:   value.String(),
			Message: fmt.Sprintf("parameter %q expects a %s value", name, current.Kind()),
		}
	}

	q.Parameters = q.Parameters.Set(name, value)
	return nil
}

// SetParameterInput parses raw as the declared kind of the named parameter and sets it.
func (q *Query) SetParameterInput(name, raw string) error {
	current, ok := q.Parameters.Get(name)
	if !ok {
		return &models.ValidationError{
			Field:   name,
			Message: fmt.Sprintf("query %q has no parameter %q", q.Name, name),
		}
	}

	value, err := current.WithInput(raw)
	if err != nil {
		return err
	}

	q.Parameters = q.Parameters.Set(name, value)
	return nil
}

// ApplyTimeRange restricts results to the inclusive span between two year/month pairs,
// expressed as decimal years. Yearly data has no Month field, so only the years bound it.
func (q *Query) ApplyTimeRange(granularity models.Granularity, startYear, startMonth, endYear, endMonth int) {
	if granularity == models.GranularityYear {
		q.Where = append(q.Where, yearRangeClause)
		q.Parameters = q.Parameters.Set(ParamDecimalYearStart, models.NumberValue(float64(startYear)))
		q.Parameters = q.Parameters.Set(ParamDecimalYearEnd, models.NumberValue(float64(endYear)))
		return
	}

	q.Where = append(q.Where, timeRangeClause)
	q.Parameters = q.Parameters.Set(ParamDecimalYearStart, models.NumberValue(DecimalYear(startYear, startMonth)))
	q.Parameters = q.Parameters.Set(ParamDecimalYearEnd, models.NumberValue(DecimalYear(endYear, endMonth)))
}

// ApplyAggregation sets the fields results are grouped and ordered by. Fields must be key
// fields of the granularity; they are matched case-insensitively and repeats are dropped.
func (q *Query) ApplyAggregation(fields []string, granularity models.Granularity) error {
	allowed := models.CommonFields(granularity)

	groupBy := make([]string, 0, len(fields))
	for _, field := range fields {
		idx := slices.IndexFunc(allowed, func(name string) bool {
			return strings.EqualFold(name, strings.TrimSpace(field))
		})
		if idx < 0 {
			return &models.ValidationError{
				Field:   "aggregation",
				Value:   field,
				Message: fmt.Sprintf("results can only be grouped by %s", strings.Join(allowed, ", ")),
			}
		}
		if !slices.Contains(groupBy, allowed[idx]) {
			groupBy = append(groupBy, allowed[idx])
		}
	}

	q.GroupBy = groupBy
	return nil
}

// DecimalYear maps a year and 1-based month onto a fractional year
func DecimalYear(year, month int) float64 {
	return float64(year) + float64(month-1)/12.0
}

// GenerateSQL renders the final SQL text
func (q *Query) GenerateSQL() string {
	sql := q.Select

	if len(q.Where) > 0 {
		sql += " WHERE (" + strings.Join(q.Where, ") AND (") + ")"
	}

	if len(q.GroupBy) > 0 {
		leading := "SELECT " + strings.Join(q.GroupBy, ",") + ", "
		replaced := false
		sql = selectKeyword.ReplaceAllStringFunc(sql, func(match string) string {
			if replaced {
				return match
			}
			replaced = true
			return leading
		})

		sql += " GROUP BY " + strings.Join(q.GroupBy, ", ")
		sql += " ORDER BY " + strings.Join(q.GroupBy, " ASC, ") + " ASC"
	}

	return sql
}

// Args returns the parameters as named driver arguments. Placeholders in the SQL text carry a
// '$' prefix which the bound name omits.
func (q *Query) Args() []interface{} {
	args := make([]interface{}, 0, len(q.Parameters))
	for _, p := range q.Parameters {
		args = append(args, sql.Named(strings.TrimLeft(p.Name, "$:@"), p.Value.Any()))
	}
	return args
}

// Requires reports whether the query depends on code
func (q *Query) Requires(code models.MeasurementCode) bool {
	return slices.Contains(q.RequiredCodes, code)
}
