package compare

import (
	"math"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

// CompareResultSets aligns two full runs level by level. Levels present on
// one side only are surfaced as missing, never dropped.
func CompareResultSets(before, after stack.ResultSet, config Config) (Document, error) {
	document := Document{
		Before: RunRef{Date: before.Date, Site: before.Site},
		After:  RunRef{Date: after.Date, Site: after.Site},
	}

	for _, level := range stack.Levels() {
		beforeRecord, inBefore := before.Tests[level]
		afterRecord, inAfter := after.Tests[level]

		switch {
		case inBefore && inAfter:
			levelComparison, err := CompareRecords(beforeRecord, afterRecord, config)
			if err != nil {
				return Document{}, err
			}
			document.Levels = append(document.Levels, levelComparison)

		case inBefore:
			document.Levels = append(document.Levels, LevelComparison{Level: level, MissingIn: "after"})

		case inAfter:
			document.Levels = append(document.Levels, LevelComparison{Level: level, MissingIn: "before"})
		}
	}

	return document, nil
}

// CompareRecords aligns two test records of the same stack level through
// their artifact trees.
func CompareRecords(before, after stack.TestRecord, config Config) (LevelComparison, error) {
	beforeSummaries, err := LoadRecordSummaries(before)
	if err != nil {
		return LevelComparison{}, err
	}

	afterSummaries, err := LoadRecordSummaries(after)
	if err != nil {
		return LevelComparison{}, err
	}

	return CompareSummaries(before.StackLevel, beforeSummaries, afterSummaries, config), nil
}

// CompareSummaries aligns two aggregated runs of one stack level in matrix
// order.
func CompareSummaries(level stack.Level, before, after map[string]ConfigSummary, config Config) LevelComparison {
	levelComparison := LevelComparison{Level: level}

	for _, workloadConfig := range fio.Matrix() {
		key := workloadConfig.Key()
		beforeSummary, inBefore := before[key]
		afterSummary, inAfter := after[key]

		switch {
		case inBefore && inAfter:
			levelComparison.Configs = append(levelComparison.Configs,
				compareConfig(workloadConfig, beforeSummary, afterSummary, config))

		case inBefore:
			levelComparison.Configs = append(levelComparison.Configs,
				ConfigComparison{Config: workloadConfig, MissingIn: "after"})

		case inAfter:
			levelComparison.Configs = append(levelComparison.Configs,
				ConfigComparison{Config: workloadConfig, MissingIn: "before"})
		}
	}

	return levelComparison
}

func compareConfig(workloadConfig fio.WorkloadConfig, before, after ConfigSummary, config Config) ConfigComparison {
	configComparison := ConfigComparison{Config: workloadConfig}

	for _, metric := range metricNames() {
		configComparison.Deltas = append(configComparison.Deltas,
			compareMetric(metric, before.Metrics[metric], after.Metrics[metric], config.NoiseThreshold))
	}

	return configComparison
}

// compareMetric classifies one metric change. A change whose magnitude does
// not exceed the noise threshold is unchanged regardless of its direction.
func compareMetric(metric string, before, after, noiseThreshold float64) MetricDelta {
	delta := MetricDelta{
		Metric:    metric,
		Before:    before,
		After:     after,
		Direction: Unchanged,
	}

	if before != 0 {
		delta.PctChange = (after - before) / before
	}

	if math.Abs(delta.PctChange) > noiseThreshold {
		improved := delta.PctChange < 0
		if !lowerIsBetter[metric] {
			improved = !improved
		}
		if improved {
			delta.Direction = Improved
		} else {
			delta.Direction = Regressed
		}
	}

	return delta
}
