package fio

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	nanoToMilli = 1.0 / (1000 * 1000)
	kibToMib    = 1.0 / 1024
)

// BasicStats is the scalar summary of one metric over a pass duration.
// Latency is in milliseconds, bandwidth in MiB/s, IOPS in operations per
// second.
type BasicStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
	// P90 is only populated for latency.
	P90 float64 `json:"p90,omitempty"`
}

// PassSummary is the parsed fio job summary of a single pass.
type PassSummary struct {
	IOEngine  string         `json:"ioengine"`
	Config    WorkloadConfig `json:"config"`
	Latency   BasicStats     `json:"latency"`
	Bandwidth BasicStats     `json:"bandwidth"`
	IOPS      BasicStats     `json:"iops"`
}

// fio `--output-format=json+` layout, reduced to the fields consumed here.
type fioSummaryFile struct {
	GlobalOptions struct {
		IOEngine string `json:"ioengine"`
	} `json:"global options"`
	Jobs []fioJob `json:"jobs"`
}

type fioJob struct {
	JobOptions struct {
		RW       string `json:"rw"`
		BS       string `json:"bs"`
		IODepth  string `json:"iodepth"`
		IOEngine string `json:"ioengine"`
	} `json:"job options"`
	Read  fioSideStats `json:"read"`
	Write fioSideStats `json:"write"`
}

type fioSideStats struct {
	ClatNS struct {
		Min        float64            `json:"min"`
		Max        float64            `json:"max"`
		Mean       float64            `json:"mean"`
		Stddev     float64            `json:"stddev"`
		Percentile map[string]float64 `json:"percentile"`
	} `json:"clat_ns"`
	BWMin      float64 `json:"bw_min"`
	BWMax      float64 `json:"bw_max"`
	BWMean     float64 `json:"bw_mean"`
	BWDev      float64 `json:"bw_dev"`
	IOPSMin    float64 `json:"iops_min"`
	IOPSMax    float64 `json:"iops_max"`
	IOPSMean   float64 `json:"iops_mean"`
	IOPSStddev float64 `json:"iops_stddev"`
}

// ParseJobSummary reads a fio JSON job summary and reduces it to the pass
// metrics of the first job. fio reports both sides of the transfer, only the
// one matching the access pattern carries the measurement.
func ParseJobSummary(reader io.Reader) (PassSummary, error) {
	// fio prepends warnings of the measurement tool to the JSON document,
	// so everything before the first brace is dropped.
	raw, err := io.ReadAll(reader)
	if err != nil {
		return PassSummary{}, errors.Wrap(err, "could not read fio summary")
	}
	if index := strings.IndexByte(string(raw), '{'); index > 0 {
		raw = raw[index:]
	}

	summaryFile := fioSummaryFile{}
	if err := json.Unmarshal(raw, &summaryFile); err != nil {
		return PassSummary{}, errors.Wrap(err, "could not parse fio summary")
	}

	if len(summaryFile.Jobs) == 0 {
		return PassSummary{}, errors.New("fio summary contains no jobs")
	}
	job := summaryFile.Jobs[0]

	pattern := Pattern(job.JobOptions.RW)
	queueDepth, err := strconv.Atoi(job.JobOptions.IODepth)
	if err != nil {
		return PassSummary{}, errors.Wrapf(err, "bad iodepth %q in fio summary", job.JobOptions.IODepth)
	}

	sideStats := job.Write
	if pattern.IsRead() {
		sideStats = job.Read
	}

	ioEngine := summaryFile.GlobalOptions.IOEngine
	if ioEngine == "" {
		ioEngine = job.JobOptions.IOEngine
	}

	return PassSummary{
		IOEngine: ioEngine,
		Config: WorkloadConfig{
			BlockSize:  job.JobOptions.BS,
			QueueDepth: queueDepth,
			Pattern:    pattern,
		},
		Latency: BasicStats{
			Min:    sideStats.ClatNS.Min * nanoToMilli,
			Max:    sideStats.ClatNS.Max * nanoToMilli,
			Mean:   sideStats.ClatNS.Mean * nanoToMilli,
			Stddev: sideStats.ClatNS.Stddev * nanoToMilli,
			P90:    sideStats.ClatNS.Percentile["90.000000"] * nanoToMilli,
		},
		Bandwidth: BasicStats{
			Min:    sideStats.BWMin * kibToMib,
			Max:    sideStats.BWMax * kibToMib,
			Mean:   sideStats.BWMean * kibToMib,
			Stddev: sideStats.BWDev * kibToMib,
		},
		IOPS: BasicStats{
			Min:    sideStats.IOPSMin,
			Max:    sideStats.IOPSMax,
			Mean:   sideStats.IOPSMean,
			Stddev: sideStats.IOPSStddev,
		},
	}, nil
}

// LoadPassSummary reads a pass summary from a plain or gzip compressed fio
// summary file.
func LoadPassSummary(path string) (PassSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return PassSummary{}, errors.Wrapf(err, "could not open fio summary %q", path)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gzipReader, err := gzip.NewReader(file)
		if err != nil {
			return PassSummary{}, errors.Wrapf(err, "could not decompress fio summary %q", path)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	summary, err := ParseJobSummary(reader)
	if err != nil {
		return PassSummary{}, errors.Wrapf(err, "in %q", path)
	}
	return summary, nil
}
