package compare

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

// LoadRecordSummaries walks the artifact tree of a test record and
// aggregates the per-pass fio summaries of every completed configuration,
// keyed by the engine-agnostic configuration identity. Configurations the
// record marks as failed are skipped, their partial artifacts would bias the
// aggregate.
func LoadRecordSummaries(record stack.TestRecord) (map[string]ConfigSummary, error) {
	entries, err := os.ReadDir(record.ArtifactDir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read artifact tree %q", record.ArtifactDir)
	}

	failed := map[string]bool{}
	for _, name := range record.FailedConfigs {
		failed[name] = true
	}

	summaries := map[string]ConfigSummary{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if failed[entry.Name()] {
			log.Debugf("skipping failed configuration %s of %s", entry.Name(), record.StackLevel)
			continue
		}

		_, workloadConfig, err := fio.ParseConfigDirName(entry.Name())
		if err != nil {
			continue
		}

		summary, err := loadConfigSummary(filepath.Join(record.ArtifactDir, entry.Name()), workloadConfig)
		if err != nil {
			return nil, errors.Wrapf(err, "broken artifacts for %s in %q", workloadConfig, record.ArtifactDir)
		}

		summaries[workloadConfig.Key()] = summary
	}

	return summaries, nil
}

// loadConfigSummary averages the pass summaries of one configuration
// directory.
func loadConfigSummary(configDir string, workloadConfig fio.WorkloadConfig) (ConfigSummary, error) {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return ConfigSummary{}, errors.Wrapf(err, "could not read %q", configDir)
	}

	values := map[string][]float64{}
	passes := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "run_") {
			continue
		}

		passSummary, err := fio.LoadPassSummary(
			filepath.Join(configDir, entry.Name(), fio.SummaryFileName))
		if err != nil {
			return ConfigSummary{}, err
		}

		values[MetricLatencyMean] = append(values[MetricLatencyMean], passSummary.Latency.Mean)
		values[MetricLatencyP90] = append(values[MetricLatencyP90], passSummary.Latency.P90)
		values[MetricBandwidthMean] = append(values[MetricBandwidthMean], passSummary.Bandwidth.Mean)
		values[MetricIOPSMean] = append(values[MetricIOPSMean], passSummary.IOPS.Mean)
		passes++
	}

	if passes == 0 {
		return ConfigSummary{}, errors.Errorf("%q contains no passes", configDir)
	}

	summary := ConfigSummary{
		Config:  workloadConfig,
		Passes:  passes,
		Metrics: map[string]float64{},
	}
	for _, metric := range metricNames() {
		mean, err := stats.Mean(values[metric])
		if err != nil {
			return ConfigSummary{}, errors.Wrapf(err, "could not aggregate %s for %q", metric, configDir)
		}
		summary.Metrics[metric] = mean
	}

	return summary, nil
}
