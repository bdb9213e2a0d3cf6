package fu

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/o3iq/insts"
)

// OpTiming describes how one op class executes on a unit.
type OpTiming struct {
	// Class is the op class the unit can execute.
	Class insts.OpClass `json:"class"`

	// Latency is the number of cycles between issue and result. A latency
	// of 0 means the result is available within the issuing cycle.
	Latency uint64 `json:"latency"`

	// Pipelined units accept a new operation every cycle; non-pipelined
	// units stay busy for the full latency.
	Pipelined bool `json:"pipelined"`
}

// Desc describes one group of identical function units.
type Desc struct {
	// Name identifies the group in dumps and stats output.
	Name string `json:"name"`

	// Count is the number of identical units in the group.
	Count int `json:"count"`

	// Ops lists the op classes the units execute and their timing.
	Ops []OpTiming `json:"ops"`
}

// Config holds the function unit pool configuration.
type Config struct {
	// Units lists the unit groups in the pool.
	Units []Desc `json:"units"`
}

// DefaultConfig returns a pool layout typical of a 4-wide out-of-order
// core: plentiful single-cycle integer ALUs, a shared multiply/divide
// unit group, pipelined FP units, and load/store ports.
func DefaultConfig() Config {
	return Config{
		Units: []Desc{
			{
				Name:  "IntALU",
				Count: 6,
				Ops: []OpTiming{
					{Class: insts.IntALU, Latency: 1, Pipelined: true},
				},
			},
			{
				Name:  "IntMultDiv",
				Count: 2,
				Ops: []OpTiming{
					{Class: insts.IntMult, Latency: 3, Pipelined: true},
					{Class: insts.IntDiv, Latency: 20, Pipelined: false},
				},
			},
			{
				Name:  "FPALU",
				Count: 4,
				Ops: []OpTiming{
					{Class: insts.FPAdd, Latency: 2, Pipelined: true},
					{Class: insts.FPCmp, Latency: 2, Pipelined: true},
					{Class: insts.FPCvt, Latency: 2, Pipelined: true},
				},
			},
			{
				Name:  "FPMultDiv",
				Count: 2,
				Ops: []OpTiming{
					{Class: insts.FPMult, Latency: 4, Pipelined: true},
					{Class: insts.FPDiv, Latency: 12, Pipelined: false},
					{Class: insts.FPSqrt, Latency: 24, Pipelined: false},
				},
			},
			{
				Name:  "MemPort",
				Count: 4,
				Ops: []OpTiming{
					{Class: insts.MemRead, Latency: 1, Pipelined: true},
					{Class: insts.MemWrite, Latency: 1, Pipelined: true},
				},
			},
		},
	}
}

// LoadConfig loads a pool configuration from a JSON file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read FU config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse FU config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the configuration to a JSON file.
func (c Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize FU config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write FU config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for structural errors.
func (c Config) Validate() error {
	for _, desc := range c.Units {
		if desc.Count <= 0 {
			return fmt.Errorf("unit group %q must have count > 0", desc.Name)
		}
		if len(desc.Ops) == 0 {
			return fmt.Errorf("unit group %q must execute at least one op class", desc.Name)
		}
		for _, op := range desc.Ops {
			if op.Class <= insts.NoOpClass || int(op.Class) >= insts.NumOpClasses {
				return fmt.Errorf("unit group %q has invalid op class %d",
					desc.Name, int(op.Class))
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	clone := Config{Units: make([]Desc, len(c.Units))}
	for i, desc := range c.Units {
		clone.Units[i] = Desc{
			Name:  desc.Name,
			Count: desc.Count,
			Ops:   append([]OpTiming(nil), desc.Ops...),
		}
	}
	return clone
}
