package main

import (
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/compare"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/errutil"
)

var (
	beforeFlag = conf.NewStringFlag(
		"before", "Run directory of the baseline result set", "")
	afterFlag = conf.NewStringFlag(
		"after", "Run directory of the result set compared against the baseline", "")
	jsonOutputFlag = conf.NewStringFlag(
		"json_output", "File the comparison document is written to, next to the printed table", "")
)

func main() {
	conf.SetAppName("comparebench")
	conf.SetHelp("Compares two benchmark result sets per stack level and workload configuration.")
	errutil.Check(conf.ParseFlags())
	log.SetLevel(conf.LogLevel())

	if beforeFlag.Value() == "" || afterFlag.Value() == "" {
		errutil.Check(stack.NewConfigurationError("both a before and an after run directory are required"))
	}

	before, err := stack.LoadResultSet(beforeFlag.Value())
	errutil.CheckWithContext(err, "could not load the baseline result set")

	after, err := stack.LoadResultSet(afterFlag.Value())
	errutil.CheckWithContext(err, "could not load the compared result set")

	document, err := compare.CompareResultSets(before, after, compare.DefaultConfig())
	errutil.CheckWithContext(err, "comparison failed")

	if jsonOutputFlag.Value() != "" {
		serialized, err := json.MarshalIndent(document, "", "    ")
		errutil.CheckWithContext(err, "could not serialize the comparison document")
		errutil.CheckWithContext(
			os.WriteFile(jsonOutputFlag.Value(), serialized, 0644),
			"could not write the comparison document")
		log.Infof("comparison document written to %s", jsonOutputFlag.Value())
	}

	compare.WriteTable(os.Stdout, document)
}
