package services

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/internal/models"
	"github.com/adamrehn/ClimateQuery/internal/parser"
)

// Output file names written by MergeDirectoriesTool
const (
	MergedStationsFile = "MERGED_StnDet_0000000.txt"
	MergedNotesFile    = "MERGED_Notes_0000000.txt"
)

const (
	paramOutputDir = "Output Directory"
	paramInputDir  = "Input Directory"
)

// MergeDirectoriesTool combines several BOM data directories of the same measure into one
type MergeDirectoriesTool struct {
	params    models.Parameters
	numInputs int
}

// NewMergeDirectoriesTool returns the tool with one empty input directory
func NewMergeDirectoriesTool() *MergeDirectoriesTool {
	t := &MergeDirectoriesTool{}
	t.SetInputs([]string{""})
	return t
}

func (t *MergeDirectoriesTool) Name() string {
	return "Merge Data Directories"
}

func (t *MergeDirectoriesTool) DescriptionShort() string {
	return "Merges multiple data directories into a single directory."
}

func (t *MergeDirectoriesTool) DescriptionLong() string {
	return "This tool takes the data from multiple input directories that contain the same measure and " +
		"merges it into a single output directory, concatenating the station lists."
}

func inputParam(i int) string {
	return paramInputDir + " " + strconv.Itoa(i)
}

// SetInputs replaces the input directory list, keeping the output directory
func (t *MergeDirectoriesTool) SetInputs(dirs []string) {
	output, ok := t.params.Get(paramOutputDir)
	if !ok {
		output = models.PathValue("")
	}

	t.params = models.Parameters{{Name: paramOutputDir, Value: output}}
	for i, dir := range dirs {
		t.params = append(t.params, models.Parameter{Name: inputParam(i + 1), Value: models.PathValue(dir)})
	}
	t.numInputs = len(dirs)
}

// AddInput appends an empty input directory parameter
func (t *MergeDirectoriesTool) AddInput() {
	t.numInputs++
	t.params = append(t.params, models.Parameter{Name: inputParam(t.numInputs), Value: models.PathValue("")})
}

// RemoveInput drops the last input directory parameter, always keeping one
func (t *MergeDirectoriesTool) RemoveInput() {
	if t.numInputs <= 1 {
		return
	}
	t.params = t.params.Delete(inputParam(t.numInputs))
	t.numInputs--
}

func (t *MergeDirectoriesTool) Parameters() models.Parameters {
	return t.params.Clone()
}

func (t *MergeDirectoriesTool) SetParameter(name string, value models.Value) error {
	params, err := setToolParameter(t.Name(), t.params, name, value)
	if err != nil {
		return err
	}
	t.params = params
	return nil
}

func (t *MergeDirectoriesTool) inputDirs() []string {
	dirs := make([]string, t.numInputs)
	for i := range dirs {
		dirs[i] = paramText(t.params, inputParam(i+1))
	}
	return dirs
}

// Validate requires every directory to be set and all of them to be distinct
func (t *MergeDirectoriesTool) Validate() error {
	if err := requireParameters(t.params); err != nil {
		return err
	}

	seen := make(map[string]bool, len(t.params))
	for _, p := range t.params {
		dir := filepath.Clean(strings.TrimSpace(p.Value.String()))
		if seen[dir] {
			return &models.ValidationError{
				Field:   p.Name,
				Value:   dir,
				Message: "All input and output directories must be different",
			}
		}
		seen[dir] = true
	}
	return nil
}

func (t *MergeDirectoriesTool) Execute(ctx context.Context, progress func(float64)) error {
	if progress == nil {
		progress = func(float64) {}
	}
	if err := t.Validate(); err != nil {
		return err
	}

	outputDir := paramText(t.params, paramOutputDir)
	inputDirs := t.inputDirs()

	stationLists := make([]string, len(inputDirs))
	for i, dir := range inputDirs {
		list, err := parser.StationDetailsFile(dir)
		if err != nil {
			return err
		}
		stationLists[i] = list
	}

	notesFile, err := parser.NotesFile(inputDirs[0])
	if err != nil {
		return err
	}

	merged, err := parser.ConcatenateStationLists(stationLists, notesFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return wrap.Errorf(err, "failed to create output directory %s", outputDir)
	}
	if err := os.WriteFile(filepath.Join(outputDir, MergedStationsFile), []byte(merged), 0o644); err != nil {
		return wrap.Error(err, "failed to write merged station list")
	}
	if err := copyFile(notesFile, filepath.Join(outputDir, MergedNotesFile)); err != nil {
		return err
	}
	progress(10)

	for i, dir := range inputDirs {
		if err := ctx.Err(); err != nil {
			return err
		}

		files, err := parser.DataFiles(dir)
		if err != nil {
			return err
		}
		prefix := filepath.Base(filepath.Clean(dir)) + "_"
		for _, file := range files {
			if err := copyFile(file, filepath.Join(outputDir, prefix+filepath.Base(file))); err != nil {
				return err
			}
		}

		progress(10 + 90*float64(i+1)/float64(len(inputDirs)))
	}

	return nil
}
