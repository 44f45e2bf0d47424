package parser

import (
	"fmt"
	"path/filepath"

	"hermannm.dev/wrap"

	"github.com/adamrehn/ClimateQuery/internal/models"
)

const (
	DataFilePattern       = "*_Data_*.txt"
	StationDetailsPattern = "*_StnDet_*.txt"
	NotesFilePattern      = "*_Notes_*.txt"
)

// DataFiles lists the observation data files in dir, sorted. At least one is required.
func DataFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, DataFilePattern))
	if err != nil {
		return nil, wrap.Errorf(err, "failed to search %s", dir)
	}

	if len(matches) == 0 {
		return nil, &models.FileDiscoveryError{
			Dir:     dir,
			Pattern: DataFilePattern,
			Message: fmt.Sprintf("failed to find data CSV files in source directory %q", dir),
		}
	}

	return matches, nil
}

// StationDetailsFile returns the single station details file in dir.
func StationDetailsFile(dir string) (string, error) {
	return exactlyOne(dir, StationDetailsPattern, "station details file")
}

// NotesFile returns the single notes file in dir.
func NotesFile(dir string) (string, error) {
	return exactlyOne(dir, NotesFilePattern, "notes file")
}

func exactlyOne(dir, pattern, description string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", wrap.Errorf(err, "failed to search %s", dir)
	}

	if len(matches) != 1 {
		return "", &models.FileDiscoveryError{
			Dir:     dir,
			Pattern: pattern,
			Found:   len(matches),
			Message: fmt.Sprintf("failed to find %s in source directory %q (found %d)", description, dir, len(matches)),
		}
	}

	return matches[0], nil
}
