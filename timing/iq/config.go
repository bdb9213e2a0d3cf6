package iq

import (
	"encoding/json"
	"fmt"
	"os"
)

// Policy selects how instruction queue entries are shared between
// hardware threads.
type Policy int

const (
	// Dynamic shares all entries freely between threads.
	Dynamic Policy = iota
	// Partitioned gives each active thread an equal private share.
	Partitioned
	// Threshold shares the free pool but caps each thread's usage.
	Threshold
)

// String returns the policy name as used in configuration files.
func (p Policy) String() string {
	switch p {
	case Dynamic:
		return "dynamic"
	case Partitioned:
		return "partitioned"
	case Threshold:
		return "threshold"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "dynamic":
		return Dynamic, nil
	case "partitioned":
		return Partitioned, nil
	case "threshold":
		return Threshold, nil
	default:
		return Dynamic, fmt.Errorf("unknown IQ policy %q", s)
	}
}

// Config holds the instruction queue parameters.
type Config struct {
	// NumEntries is the total queue capacity.
	NumEntries uint `json:"num_entries"`

	// TotalWidth is the maximum number of instructions issued per cycle.
	TotalWidth uint `json:"total_width"`

	// SquashWidth bounds how many instructions a squash removes per cycle.
	SquashWidth uint `json:"squash_width"`

	// NumPhysIntRegs and NumPhysFloatRegs size the flat physical register
	// space. Integer registers come first.
	NumPhysIntRegs   uint `json:"num_phys_int_regs"`
	NumPhysFloatRegs uint `json:"num_phys_float_regs"`

	// ZeroReg is the physical register index that always reads as zero and
	// is skipped by dependency tracking. Set to -1 to disable.
	ZeroReg int `json:"zero_reg"`

	// Policy selects the SMT sharing policy: "dynamic", "partitioned" or
	// "threshold".
	Policy string `json:"policy"`

	// Threshold is the per-thread entry cap for the threshold policy.
	Threshold uint `json:"threshold"`

	// CommitToIEWDelay is the delay, in cycles, of the commit→IQ signal.
	CommitToIEWDelay uint `json:"commit_to_iew_delay"`

	// NumThreads is the number of hardware threads.
	NumThreads uint `json:"num_threads"`
}

// DefaultConfig returns parameters for a 4-wide, 64-entry queue with a
// single thread.
func DefaultConfig() Config {
	return Config{
		NumEntries:       64,
		TotalWidth:       4,
		SquashWidth:      8,
		NumPhysIntRegs:   128,
		NumPhysFloatRegs: 128,
		ZeroReg:          31,
		Policy:           "dynamic",
		Threshold:        32,
		CommitToIEWDelay: 1,
		NumThreads:       1,
	}
}

// NumPhysRegs returns the size of the flat physical register space.
func (c Config) NumPhysRegs() uint {
	return c.NumPhysIntRegs + c.NumPhysFloatRegs
}

// LoadConfig loads a queue configuration from a JSON file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read IQ config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse IQ config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the configuration to a JSON file.
func (c Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize IQ config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write IQ config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for structural errors.
func (c Config) Validate() error {
	if c.NumEntries == 0 {
		return fmt.Errorf("num_entries must be > 0")
	}
	if c.NumPhysIntRegs == 0 {
		return fmt.Errorf("num_phys_int_regs must be > 0")
	}
	if c.NumThreads == 0 || c.NumThreads > MaxThreads {
		return fmt.Errorf("num_threads must be in [1, %d]", MaxThreads)
	}
	if c.ZeroReg >= int(c.NumPhysRegs()) {
		return fmt.Errorf("zero_reg %d outside register space [0, %d)",
			c.ZeroReg, c.NumPhysRegs())
	}
	if _, err := ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.Policy == "threshold" && c.Threshold == 0 {
		return fmt.Errorf("threshold policy requires threshold > 0")
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c Config) Clone() Config {
	return c
}
