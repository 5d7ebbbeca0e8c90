// Package netbox picks physical benchmark hosts out of the Netbox inventory.
// Hosts are selected at random among the active machines matching a search
// query, so repeated runs spread the load across the fleet.
package netbox

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

var (
	netboxURLFlag = conf.NewStringFlag(
		"netbox_url", "Base URL of the Netbox API", "https://netbox.local/api")
	netboxTokenFlag = conf.NewStringFlag(
		"netbox_token", "API token for Netbox", "")
)

// Config keeps the Netbox API endpoint and credentials.
type Config struct {
	URL   string
	Token string
}

// DefaultConfig creates the Netbox configuration from flags.
func DefaultConfig() Config {
	return Config{
		URL:   netboxURLFlag.Value(),
		Token: netboxTokenFlag.Value(),
	}
}

// Client is a minimal Netbox REST client covering device search.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Netbox client.
func NewClient(config Config) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Netbox device listing, reduced to the fields consumed here.
type device struct {
	Name   string `json:"name"`
	Status struct {
		Value string `json:"value"`
	} `json:"status"`
	Site struct {
		Slug string `json:"slug"`
	} `json:"site"`
	DeviceType struct {
		Model string `json:"model"`
	} `json:"device_type"`
	Rack struct {
		Name string `json:"name"`
	} `json:"rack"`
}

type deviceListing struct {
	Results []device `json:"results"`
}

// FindHost returns one active device matching the search query at the given
// Netbox site, picked at random among the candidates.
func (c *Client) FindHost(query, siteSlug string) (stack.HostInfo, error) {
	devices, err := c.searchDevices(query)
	if err != nil {
		return stack.HostInfo{}, err
	}

	candidates := []device{}
	for _, dev := range devices {
		if dev.Site.Slug == siteSlug && dev.Status.Value == "active" {
			candidates = append(candidates, dev)
		}
	}

	if len(candidates) == 0 {
		return stack.HostInfo{}, errors.Errorf(
			"no active host matching %q at site %q, need 1 but got 0", query, siteSlug)
	}

	picked := candidates[rand.Intn(len(candidates))]
	log.Debugf("picked %s out of %d hosts matching %q", picked.Name, len(candidates), query)

	return stack.HostInfo{
		FQDN:  fmt.Sprintf("%s.%s.wmnet", picked.Name, picked.Site.Slug),
		Model: picked.DeviceType.Model,
		Rack:  picked.Rack.Name,
	}, nil
}

func (c *Client) searchDevices(query string) ([]device, error) {
	requestURL := fmt.Sprintf("%s/dcim/devices/?q=%s", c.config.URL, url.QueryEscape(query))

	request, err := http.NewRequest(http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build netbox request")
	}
	request.Header.Set("Authorization", fmt.Sprintf("Token %s", c.config.Token))

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "netbox request failed")
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, errors.Errorf("netbox responded with %s", response.Status)
	}

	listing := deviceListing{}
	if err := json.NewDecoder(response.Body).Decode(&listing); err != nil {
		return nil, errors.Wrap(err, "could not parse netbox response")
	}

	return listing.Results, nil
}
