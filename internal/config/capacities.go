package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Capacities overrides the capacity of schema types per module:
//
//	Core:
//	  Entity: 4096
//	  Transform: 4096
type Capacities map[string]map[string]uint32

// LoadCapacities reads a type_capacities.yaml file. A missing file yields no
// overrides.
func LoadCapacities(path string) (Capacities, error) {
	if path == "" {
		return Capacities{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Capacities{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read capacities: %w", err)
	}
	var caps Capacities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("parse capacities %s: %w", path, err)
	}
	if caps == nil {
		caps = Capacities{}
	}
	return caps, nil
}

// Get returns the configured capacity of module.typ, or fallback.
func (c Capacities) Get(module, typ string, fallback uint32) uint32 {
	if v, ok := c[module][typ]; ok && v > 0 {
		return v
	}
	return fallback
}
