package stack

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// MetadataFileName is the name of the metadata file written at the run
	// root and next to each retrieved artifact tree.
	MetadataFileName = "metadata.json"

	// DateFormat is the timestamp layout used for run labels.
	DateFormat = "2006-01-02_15-04-05"
)

// ResultSet is the captured output of one full benchmarking run across up to
// four stack levels. A ResultSet may be partial (fewer levels than four) and
// has to be tolerated as such by every consumer.
type ResultSet struct {
	Date         string               `json:"date"`
	Site         string               `json:"site"`
	Tests        map[Level]TestRecord `json:"tests"`
	DurationSecs float64              `json:"duration_secs,omitempty"`
}

// Levels returns the stack levels present in the set, in canonical order.
func (r ResultSet) Levels() []Level {
	var present []Level
	for _, level := range Levels() {
		if _, ok := r.Tests[level]; ok {
			present = append(present, level)
		}
	}
	return present
}

// Save writes the result set metadata file into the given run directory.
func (r ResultSet) Save(runDir string) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return errors.Wrap(err, "could not serialize result set")
	}

	path := filepath.Join(runDir, MetadataFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "could not write result set to %q", path)
	}

	return nil
}

// LoadResultSet reads a result set from a run directory and resolves the
// artifact tree location of every record against that directory.
func LoadResultSet(runDir string) (ResultSet, error) {
	path := filepath.Join(runDir, MetadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return ResultSet{}, errors.Wrapf(err, "could not read result set from %q", path)
	}

	resultSet := ResultSet{}
	if err := json.Unmarshal(data, &resultSet); err != nil {
		return ResultSet{}, errors.Wrapf(err, "could not parse result set from %q", path)
	}

	for level, record := range resultSet.Tests {
		if record.ArtifactDir == "" {
			record.ArtifactDir = filepath.Join(runDir, level.String(), record.HostInfo.FQDN)
		} else if !filepath.IsAbs(record.ArtifactDir) {
			record.ArtifactDir = filepath.Join(runDir, record.ArtifactDir)
		}
		resultSet.Tests[level] = record
	}

	return resultSet, nil
}

// WriteRunMetadata writes the per-host side record next to an artifact tree.
func WriteRunMetadata(dir string, metadata RunMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "    ")
	if err != nil {
		return errors.Wrap(err, "could not serialize run metadata")
	}

	path := filepath.Join(dir, MetadataFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "could not write run metadata to %q", path)
	}

	return nil
}

// LoadRunMetadata reads the per-host side record from an artifact tree.
func LoadRunMetadata(dir string) (RunMetadata, error) {
	path := filepath.Join(dir, MetadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return RunMetadata{}, errors.Wrapf(err, "could not read run metadata from %q", path)
	}

	metadata := RunMetadata{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return RunMetadata{}, errors.Wrapf(err, "could not parse run metadata from %q", path)
	}

	return metadata, nil
}
