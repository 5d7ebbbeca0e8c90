package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	osclient "github.com/gophercloud/gophercloud/openstack"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/fio"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/metadata"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/netbox"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/openstack"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/session"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/errutil"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/uuid"
)

var (
	siteFlag = conf.NewStringFlag(
		"site", "Cloud deployment the benchmark runs in (eqiad1 or codfw1dev)", "eqiad1")
	stackLevelsFlag = conf.NewSliceFlag(
		"stack_levels", "Stack levels to measure, repeatable (default: all remotely resolvable levels)")
	runnerBinaryFlag = conf.NewStringFlag(
		"runner_binary", "Path of the runfio binary staged on benchmark targets", "/usr/local/bin/runfio")
	osdHostFlag = conf.NewStringFlag(
		"osd_host", "Explicit host for the osd_disk level, it has no inventory to resolve from", "")
	storeMetadataFlag = conf.NewBoolFlag(
		"store_metadata", "Publish the result set to the Cassandra metadata store", false)
)

// The netbox site slugs behind the deployment names.
var netboxSiteSlugs = map[string]string{
	"eqiad1":    "eqiad",
	"codfw1dev": "codfw",
}

func main() {
	conf.SetAppName("runbench")
	conf.SetHelp("Runs the fio workload matrix across the storage stack levels of one cloud deployment and captures a comparable result set.")
	errutil.Check(conf.ParseFlags())
	log.SetLevel(conf.LogLevel())

	site := siteFlag.Value()
	siteSlug, ok := netboxSiteSlugs[site]
	if !ok {
		errutil.Check(stack.NewConfigurationError("unknown site %q", site))
	}

	levels := requestedLevels()
	fioConfig := fio.DefaultConfig()

	date := time.Now().Format(stack.DateFormat)
	outDir := session.OutputDir()
	if outDir == "" {
		outDir = filepath.Join("results", site, date)
	}
	errutil.CheckWithContext(os.MkdirAll(outDir, 0755), "could not create the run directory")

	resultSet := stack.ResultSet{
		Date:  date,
		Site:  site,
		Tests: map[stack.Level]stack.TestRecord{},
	}

	start := time.Now()
	for _, level := range levels {
		host, err := resolveHost(level, site, siteSlug)
		errutil.CheckWithContext(err, fmt.Sprintf("could not resolve a host for %s", level))

		log.Infof("running %s tests on host %s", level, host.FQDN)
		benchmark := session.Session{
			Level:        level,
			Host:         host,
			Site:         site,
			Device:       session.Device(),
			Config:       fioConfig,
			RunnerBinary: runnerBinaryFlag.Value(),
		}

		record, err := benchmark.Run(outDir)
		errutil.CheckWithContext(err, fmt.Sprintf("%s tests on %s failed", level, host.FQDN))
		resultSet.Tests[level] = record
	}
	resultSet.DurationSecs = time.Since(start).Seconds()

	errutil.CheckWithContext(resultSet.Save(outDir), "could not save the result set")
	log.Infof("run complete, results in %s", outDir)

	if storeMetadataFlag.Value() {
		publish(resultSet)
	}
}

// requestedLevels resolves the level selection flag. The osd_disk level needs
// an explicit host and device, so it only runs when asked for.
func requestedLevels() []stack.Level {
	names := stackLevelsFlag.Value()
	if len(names) == 0 {
		return []stack.Level{stack.RBDFromOSD, stack.RBDFromHypervisor, stack.VMDisk}
	}

	levels := []stack.Level{}
	for _, name := range names {
		level, err := stack.ParseLevel(name)
		errutil.Check(err)
		levels = append(levels, level)
	}
	return levels
}

// resolveHost picks the benchmark host of a stack level: physical hosts come
// from the netbox inventory, the vm_disk guest from openstack and the
// osd_disk host from an explicit flag.
func resolveHost(level stack.Level, site, siteSlug string) (stack.HostInfo, error) {
	switch level {
	case stack.OSDDisk:
		if osdHostFlag.Value() == "" {
			return stack.HostInfo{}, stack.NewConfigurationError("level %s needs an explicit host", level)
		}
		return stack.HostInfo{FQDN: osdHostFlag.Value(), Model: "unknown"}, nil

	case stack.RBDFromOSD:
		return netbox.NewClient(netbox.DefaultConfig()).FindHost("cloudcephosd", siteSlug)

	case stack.RBDFromHypervisor:
		return netbox.NewClient(netbox.DefaultConfig()).FindHost("cloudvirt", siteSlug)

	case stack.VMDisk:
		auth, err := osclient.AuthOptionsFromEnv()
		if err != nil {
			return stack.HostInfo{}, err
		}

		inventory, err := openstack.NewInventory(openstack.DefaultConfig(auth))
		if err != nil {
			return stack.HostInfo{}, err
		}
		return inventory.EnsurePerformanceVM(site)
	}

	return stack.HostInfo{}, stack.NewConfigurationError("no host resolution for level %s", level)
}

func publish(resultSet stack.ResultSet) {
	runID := uuid.New()

	store := metadata.NewStore(runID, metadata.ConfigFromFlags())
	errutil.CheckWithContext(store.Connect(), "cannot connect to the metadata store")
	defer store.Close()

	errutil.CheckWithContext(store.StoreResultSet(resultSet), "cannot publish the result set")
	log.Infof("result set published as run %s", runID)
}
