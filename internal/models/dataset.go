package models

import (
	"fmt"
	"time"

	"hermannm.dev/enumnames"
)

// Dataset is a catalog entry for a successfully built dataset.
type Dataset struct {
	ID             string      `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	Request        DataRequest `json:"request"`
	CreatedAt      time.Time   `json:"created_at"`
	Database       string      `json:"database" db:"database_path"`
	Granularity    Granularity `json:"granularity"`
	PercentPresent float64     `json:"percent_present" db:"percent_present"`
}

// BuildPhase is a stage of the dataset build state machine.
type BuildPhase int8

const (
	BuildStarted BuildPhase = iota
	BuildProcessing
	BuildMerging
	BuildCompleted
)

var buildPhaseNames = enumnames.NewMap(map[BuildPhase]string{
	BuildStarted:    "started",
	BuildProcessing: "processing",
	BuildMerging:    "merging",
	BuildCompleted:  "completed",
})

func (p BuildPhase) String() string {
	return buildPhaseNames.GetNameOrFallback(p, "unknown")
}

func (p BuildPhase) MarshalJSON() ([]byte, error) {
	return buildPhaseNames.MarshalToNameJSON(p)
}

func (p *BuildPhase) UnmarshalJSON(bytes []byte) error {
	return buildPhaseNames.UnmarshalFromNameJSON(bytes, p)
}

// BuildProgress is emitted by the dataset builder at every phase transition and after each file.
type BuildProgress struct {
	Phase     BuildPhase `json:"phase"`
	Processed int        `json:"processed"`
	Total     int        `json:"total"`
}

// ProgressFunc receives build progress events. It is called synchronously from the build.
type ProgressFunc func(BuildProgress)

// PercentComplete maps the phase onto 0-100, weighting file processing at 90%.
func (p BuildProgress) PercentComplete() float64 {
	switch p.Phase {
	case BuildStarted:
		return 0
	case BuildProcessing:
		if p.Total == 0 {
			return 0
		}
		return (float64(p.Processed) / float64(p.Total)) * 90.0
	case BuildMerging:
		return 90.0
	case BuildCompleted:
		return 100.0
	default:
		return 0
	}
}

func (p BuildProgress) String() string {
	switch p.Phase {
	case BuildStarted:
		return "Dataset build started"
	case BuildProcessing:
		return fmt.Sprintf("Processed CSV data file %d of %d", p.Processed, p.Total)
	case BuildMerging:
		return "Merging extracted datasets into a single table"
	case BuildCompleted:
		return "Dataset build completed"
	default:
		return "Unknown build phase"
	}
}

// ValidationReportItem is the outcome of checking one (station, code) pair.
type ValidationReportItem struct {
	Supported bool            `json:"supported"`
	Station   int             `json:"station"`
	Code      MeasurementCode `json:"measurement_code"`
	Start     int             `json:"start"`
	End       int             `json:"end"`
}

// ValidationReport aggregates the per-pair checks of a request.
type ValidationReport struct {
	Valid   bool                   `json:"valid"`
	Request DataRequest            `json:"request"`
	Details []ValidationReportItem `json:"details"`
}

// PresenceReport maps station -> year -> percentage of days with quality-approved data.
type PresenceReport map[int]map[int]float64
