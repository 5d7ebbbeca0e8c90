// Package stack defines the storage stack layers under test and the result
// records captured for them. Each level measures the same workload matrix at
// a different isolation point of the storage path, from the raw disk under an
// OSD daemon up to the disk visible inside a virtual machine.
package stack

import (
	"github.com/pkg/errors"
)

// Level is one isolation layer of the storage path under test.
type Level int

const (
	// OSDDisk benchmarks the raw physical disk backing an OSD daemon.
	OSDDisk Level = iota
	// RBDFromOSD benchmarks the full cluster (using librbd) from one of the
	// OSD hosts.
	RBDFromOSD
	// RBDFromHypervisor benchmarks the full cluster (using librbd) from one
	// of the hypervisors.
	RBDFromHypervisor
	// VMDisk benchmarks a file on the disk of a virtual machine, exercising
	// the whole stack: VM kernel, libvirt, librbd and the cluster below.
	VMDisk
)

// Levels lists all stack levels in their canonical execution order.
func Levels() []Level {
	return []Level{OSDDisk, RBDFromOSD, RBDFromHypervisor, VMDisk}
}

var levelNames = map[Level]string{
	OSDDisk:           "osd_disk",
	RBDFromOSD:        "rbd_from_osd",
	RBDFromHypervisor: "rbd_from_hypervisor",
	VMDisk:            "vm_disk",
}

// String returns the canonical name of the level, as used in artifact paths
// and metadata files.
func (l Level) String() string {
	name, ok := levelNames[l]
	if !ok {
		return "unknown"
	}
	return name
}

// ParseLevel converts a canonical level name back to a Level.
func ParseLevel(name string) (Level, error) {
	for level, levelName := range levelNames {
		if levelName == name {
			return level, nil
		}
	}
	return OSDDisk, errors.Errorf("unknown stack level %q", name)
}

// RequiresElevation returns true when tests for the level have to run as
// root on a shared host. The performance VM is fully owned by the test
// account, so vm_disk runs unprivileged.
func (l Level) RequiresElevation() bool {
	return l != VMDisk
}

// IOEngine returns the fio engine driving the level: librbd for the levels
// that talk to the cluster directly, linux native aio for the ones that see
// a plain disk or file.
func (l Level) IOEngine() string {
	switch l {
	case RBDFromOSD, RBDFromHypervisor:
		return "rbd"
	default:
		return "libaio"
	}
}

// MarshalText makes Level usable as a JSON object key.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a canonical level name.
func (l *Level) UnmarshalText(text []byte) error {
	level, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = level
	return nil
}
