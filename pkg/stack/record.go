package stack

// VMInfo describes the virtual machine a vm_disk test ran on.
type VMInfo struct {
	ID     string `json:"id"`
	Image  string `json:"image"`
	Flavor string `json:"flavor"`
	Name   string `json:"name"`
}

// HostInfo identifies the host a test ran on. VMInfo is only present when
// the host is a virtual machine; its presence is a semantic signal on its
// own, a vm_disk record must have it and the other levels must not.
type HostInfo struct {
	FQDN   string  `json:"fqdn"`
	Model  string  `json:"model"`
	Rack   string  `json:"rack,omitempty"`
	VMInfo *VMInfo `json:"vm_info,omitempty"`
}

// Validate checks the HostInfo invariants for the given stack level.
func (h HostInfo) Validate(level Level) error {
	if h.FQDN == "" {
		return NewConfigurationError("host for level %s has no fqdn", level)
	}

	if level == VMDisk && h.VMInfo == nil {
		return NewConfigurationError("level %s requires VM metadata for host %q but none is available", level, h.FQDN)
	}

	if level != VMDisk && h.VMInfo != nil {
		return NewConfigurationError("level %s must not carry VM metadata but host %q does", level, h.FQDN)
	}

	return nil
}

// TestInfo describes how one stack level test was executed.
type TestInfo struct {
	NumPasses  int    `json:"num_passes"`
	StackLevel Level  `json:"stack_level"`
	Script     string `json:"script"`
	Host       string `json:"host"`
}

// TestRecord is the self-describing result of one stack level test: the host
// identity, the test parameters and the artifact tree location. It is
// assembled once, after all passes finished or failed, and never mutated.
type TestRecord struct {
	StackLevel  Level    `json:"stack_level"`
	HostInfo    HostInfo `json:"host_info"`
	TestInfo    TestInfo `json:"test_info"`
	ArtifactDir string   `json:"artifact_dir"`
	// FailedConfigs lists artifact directory names of the workload
	// configurations whose passes did not all complete.
	FailedConfigs []string `json:"failed_configs,omitempty"`
}

// RunMetadata is the per-host side record written next to a retrieved
// artifact tree.
type RunMetadata struct {
	TestInfo      TestInfo `json:"test_info"`
	FailedConfigs []string `json:"failed_configs,omitempty"`
}
