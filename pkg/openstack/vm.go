// Package openstack resolves the throwaway virtual machine the vm_disk level
// is measured on. The machine is looked up in the test project and created
// from a fixed flavor and image when absent, so every run measures the same
// class of guest.
package openstack

import (
	"fmt"
	"time"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/utils/openstack/compute/v2/flavors"
	"github.com/gophercloud/utils/openstack/imageservice/v2/images"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/utils/netutil"
)

var (
	projectFlag = conf.NewStringFlag(
		"os_project", "Openstack project the performance VM lives in", "testlabs")
	vmNameFlag = conf.NewStringFlag(
		"vm_name", "Name of the performance VM", "performance-test")
	vmFlavorFlag = conf.NewStringFlag(
		"vm_flavor", "Flavor the performance VM is created with", "g3.cores1.ram2.disk20")
	vmImageFlag = conf.NewStringFlag(
		"vm_image", "Image the performance VM is created from", "debian-10.0-buster")
	vmNetworkFlag = conf.NewStringFlag(
		"vm_network", "UUID of the network the performance VM is attached to", "")
	vmBootTimeoutFlag = conf.NewDurationFlag(
		"vm_boot_timeout", "How long to wait for the performance VM to boot and accept ssh", 15*time.Minute)
)

// Config defines the performance VM lookup and creation parameters.
type Config struct {
	Auth        gophercloud.AuthOptions
	Region      string
	Project     string
	VMName      string
	Flavor      string
	Image       string
	Network     string
	BootTimeout time.Duration
}

// DefaultConfig creates the VM configuration from flags.
func DefaultConfig(auth gophercloud.AuthOptions) Config {
	return Config{
		Auth:        auth,
		Project:     projectFlag.Value(),
		VMName:      vmNameFlag.Value(),
		Flavor:      vmFlavorFlag.Value(),
		Image:       vmImageFlag.Value(),
		Network:     vmNetworkFlag.Value(),
		BootTimeout: vmBootTimeoutFlag.Value(),
	}
}

// Inventory talks to the Openstack compute API of one deployment.
type Inventory struct {
	client *gophercloud.ServiceClient
	config Config
}

// NewInventory authenticates against the deployment named in the config.
func NewInventory(config Config) (*Inventory, error) {
	provider, err := openstack.AuthenticatedClient(config.Auth)
	if err != nil {
		return nil, errors.Wrap(err, "could not authenticate against openstack")
	}

	client, err := openstack.NewComputeV2(provider, gophercloud.EndpointOpts{Region: config.Region})
	if err != nil {
		return nil, errors.Wrap(err, "could not get openstack compute client")
	}

	return &Inventory{client: client, config: config}, nil
}

// EnsurePerformanceVM returns the host identity of the performance VM at the
// given site, creating the machine when it does not exist yet. It only
// returns once the machine accepts ssh connections.
func (inv *Inventory) EnsurePerformanceVM(site string) (stack.HostInfo, error) {
	fqdn := fmt.Sprintf("%s.%s.%s.wikimedia.cloud", inv.config.VMName, inv.config.Project, site)

	server, err := inv.findServer(inv.config.VMName)
	if err != nil {
		return stack.HostInfo{}, err
	}

	if server == nil {
		log.Infof("performance VM %q not found in project %q on %s, creating it",
			inv.config.VMName, inv.config.Project, site)
		server, err = inv.createServer()
		if err != nil {
			return stack.HostInfo{}, err
		}
	}

	log.Infof("waiting for %s to accept ssh connections", fqdn)
	if !netutil.IsListening(fmt.Sprintf("%s:22", fqdn), inv.config.BootTimeout) {
		return stack.HostInfo{}, errors.Errorf(
			"performance VM %q did not accept ssh connections within %s", fqdn, inv.config.BootTimeout)
	}

	return stack.HostInfo{
		FQDN:  fqdn,
		Model: "virtual",
		VMInfo: &stack.VMInfo{
			ID:     server.ID,
			Image:  inv.config.Image,
			Flavor: inv.config.Flavor,
			Name:   inv.config.VMName,
		},
	}, nil
}

// findServer looks the VM up by its exact name. Nil without an error means
// the machine does not exist.
func (inv *Inventory) findServer(name string) (*servers.Server, error) {
	allPages, err := servers.List(inv.client, servers.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, errors.Wrap(err, "could not list servers")
	}

	allServers, err := servers.ExtractServers(allPages)
	if err != nil {
		return nil, errors.Wrap(err, "could not extract servers list")
	}

	// The name filter of the compute API matches substrings.
	for _, server := range allServers {
		if server.Name == name {
			return &server, nil
		}
	}

	return nil, nil
}

func (inv *Inventory) createServer() (*servers.Server, error) {
	flavorID, err := flavors.IDFromName(inv.client, inv.config.Flavor)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve flavor %q", inv.config.Flavor)
	}

	imageID, err := images.IDFromName(inv.client, inv.config.Image)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve image %q", inv.config.Image)
	}

	createOpts := servers.CreateOpts{
		Name:      inv.config.VMName,
		FlavorRef: flavorID,
		ImageRef:  imageID,
	}
	if inv.config.Network != "" {
		createOpts.Networks = []servers.Network{{UUID: inv.config.Network}}
	}

	server, err := servers.Create(inv.client, createOpts).Extract()
	if err != nil {
		return nil, errors.Wrapf(err, "could not create performance VM %q", inv.config.VMName)
	}

	log.Infof("scheduled creation of instance %s", server.ID)

	timeoutSecs := int(inv.config.BootTimeout.Seconds())
	if err := servers.WaitForStatus(inv.client, server.ID, "ACTIVE", timeoutSecs); err != nil {
		return nil, errors.Wrapf(err, "performance VM %q did not become active", inv.config.VMName)
	}

	log.Infof("launched instance %s", server.ID)

	return server, nil
}
