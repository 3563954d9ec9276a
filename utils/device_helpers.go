// Package utils holds small helpers shared by tests and example drivers.
package utils

import (
	"fmt"

	"github.com/notargets/gocca"
)

// CreateTestDevice probes OCCA backends in order of preference, parallel
// first, and returns the first that initializes. Callers (tests, examples)
// decide whether a missing runtime is a skip or a failure.
func CreateTestDevice() (*gocca.OCCADevice, error) {
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}
	for _, props := range backends {
		if device, err := gocca.NewDevice(props); err == nil {
			return device, nil
		}
	}
	return nil, fmt.Errorf("utils: no OCCA backend available")
}
