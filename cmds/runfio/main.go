package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/session"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/errutil"
)

// runfio is the runner half of the benchmark: it executes the workload
// matrix against one storage target on the machine it runs on and leaves the
// artifact tree behind. The orchestrator stages it on remote targets.
func main() {
	conf.SetAppName("runfio")
	conf.SetHelp("Runs the fio workload matrix against one storage target and writes the artifact tree.")
	errutil.Check(conf.ParseFlags())
	log.SetLevel(conf.LogLevel())

	config := fio.DefaultConfig()

	level, runner, outDir, err := session.RunnerSettings(config)
	errutil.Check(err)

	log.Infof("running the %s matrix with %s", level, runner.Name())
	errutil.CheckWithContext(
		session.ExecuteLocal(level, runner, config, outDir), "benchmark run failed")

	log.Infof("matrix complete, artifacts in %s", outDir)
}
