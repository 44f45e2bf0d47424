package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

// Tool is a preprocessing step run over raw BOM data directories before datasets are built
type Tool interface {
	Name() string
	DescriptionShort() string
	DescriptionLong() string

	// Parameters returns the tool's named inputs in display order
	Parameters() models.Parameters
	SetParameter(name string, value models.Value) error

	// Validate reports the first parameter problem, or nil when Execute may run
	Validate() error

	// Execute runs the tool, reporting percent complete (0-100) to progress
	Execute(ctx context.Context, progress func(float64)) error
}

// ToolRegistry lists the available preprocessing tools
type ToolRegistry struct {
	factories []func() Tool
}

// NewToolRegistry registers the built-in tools. Aggregation builds temporary datasets through datasets.
func NewToolRegistry(datasets *DatasetService) *ToolRegistry {
	return &ToolRegistry{
		factories: []func() Tool{
			func() Tool { return NewMergeDirectoriesTool() },
			func() Tool { return NewAggregateDirectoryTool(datasets) },
		},
	}
}

// All returns a fresh instance of every registered tool
func (r *ToolRegistry) All() []Tool {
	tools := make([]Tool, len(r.factories))
	for i, factory := range r.factories {
		tools[i] = factory()
	}
	return tools
}

// New returns a fresh instance of the named tool. Matching ignores case.
func (r *ToolRegistry) New(name string) (Tool, bool) {
	for _, factory := range r.factories {
		if tool := factory(); strings.EqualFold(tool.Name(), name) {
			return tool, true
		}
	}
	return nil, false
}

// setToolParameter replaces a declared parameter of params. Text input is accepted for path
// parameters, since JSON and command-line input cannot tell the two apart.
func setToolParameter(tool string, params models.Parameters, name string, value models.Value) (models.Parameters, error) {
	current, ok := params.Get(name)
	if !ok {
		return params, &models.ValidationError{
			Field:   name,
			Message: fmt.Sprintf("tool %q has no parameter %q", tool, name),
		}
	}

	converted, err := current.WithInput(value.String())
	if err != nil {
		return params, err
	}
	return params.Set(name, converted), nil
}

func paramText(params models.Parameters, name string) string {
	value, _ := params.Get(name)
	return strings.TrimSpace(value.String())
}

func requireParameters(params models.Parameters) error {
	for _, p := range params {
		if p.Value.IsEmpty() {
			return &models.ValidationError{
				Field:   p.Name,
				Message: "A value must be provided for " + p.Name,
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return wrap.Errorf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return wrap.Errorf(err, "failed to create %s", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return wrap.Errorf(err, "failed to copy %s to %s", src, dst)
	}
	if err := out.Close(); err != nil {
		return wrap.Errorf(err, "failed to write %s", dst)
	}
	return nil
}
