// Package config loads the static YAML configuration document described in
// spec.md §6 ("Persisted state"), the way the chaos-tooling sibling
// project's pkg/config package loads its own YAML document with
// gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SymbolicLevel is the level field as it appears in the configuration
// document: either a literal non-negative integer or one of the symbolic
// spellings spec.md §6 lists.
type SymbolicLevel string

const (
	LevelUndefined   SymbolicLevel = "undefined"
	LevelLeaf        SymbolicLevel = "leaf"
	LevelLeafToLeaf  SymbolicLevel = "leaf-2-leaf"
	LevelTopOfFabric SymbolicLevel = "top-of-fabric"
)

// Config is the root of a node's static configuration document.
type Config struct {
	Name    string `yaml:"name"`
	Passive bool   `yaml:"passive"`

	// Level is either one of the SymbolicLevel constants or a decimal
	// integer literal, e.g. "23".
	Level string `yaml:"level"`

	SystemID uint64 `yaml:"system_id"`

	LIEPort        uint16 `yaml:"lie_port"`
	LIEMulticastV4 string `yaml:"lie_multicast_v4"`
	TIEPort        uint16 `yaml:"tie_port"`

	// KernelRouteTable is either a numeric table id or one of the
	// reserved names main|local|default|unspecified|none (spec.md §6
	// "Environment").
	KernelRouteTable string `yaml:"kernel_route_table,omitempty"`

	Interfaces []InterfaceConfig `yaml:"interfaces"`
	Prefixes   []PrefixConfig    `yaml:"prefixes,omitempty"`
}

// InterfaceConfig configures one Interface (spec.md §3 "Interface").
type InterfaceConfig struct {
	Name string `yaml:"name"`

	LinkID    uint32 `yaml:"link_id"`
	LocalAddr string `yaml:"local_addr"`

	LIEMulticastV4 string `yaml:"lie_multicast_v4,omitempty"`
	LIEPort        uint16 `yaml:"lie_port,omitempty"`
	TIEPort        uint16 `yaml:"tie_port,omitempty"`

	MTU uint32 `yaml:"mtu"`
	PoD uint32 `yaml:"pod,omitempty"`

	HoldTime uint16 `yaml:"hold_time,omitempty"`
}

// PrefixConfig is one configured reachable prefix with its metric and tags
// (spec.md §3 "Prefix TIE").
type PrefixConfig struct {
	Prefix string   `yaml:"prefix"`
	Metric uint32   `yaml:"metric"`
	Tags   []string `yaml:"tags,omitempty"`
}

// Load reads and parses the configuration document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a configuration document from raw YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("parse config: name is required")
	}
	if cfg.Level == "" {
		cfg.Level = string(LevelUndefined)
	}
	for i, iface := range cfg.Interfaces {
		if iface.Name == "" {
			return nil, fmt.Errorf("parse config: interfaces[%d] missing name", i)
		}
		if iface.HoldTime == 0 {
			cfg.Interfaces[i].HoldTime = 3 // spec.md §4.1 default hold time
		}
		if iface.LIEPort == 0 {
			cfg.Interfaces[i].LIEPort = cfg.LIEPort
		}
		if iface.TIEPort == 0 {
			cfg.Interfaces[i].TIEPort = cfg.TIEPort
		}
		if iface.LIEMulticastV4 == "" {
			cfg.Interfaces[i].LIEMulticastV4 = cfg.LIEMulticastV4
		}
	}
	return &cfg, nil
}

// DefaultConfig returns a minimal single-interface configuration, useful
// for tests and as a documented starting point (mirrors the chaos tooling's
// DefaultConfig helper).
func DefaultConfig() *Config {
	return &Config{
		Name:           "node",
		Level:          string(LevelUndefined),
		LIEPort:        914,
		LIEMulticastV4: "224.0.0.120",
		TIEPort:        915,
	}
}
