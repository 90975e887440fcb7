package store

import (
	"fmt"
	"strings"
)

// SupportedDrivers lists all available store drivers.
var SupportedDrivers = []string{"bbolt", "json", "memory"}

// NewStore creates a new Store instance based on the specified driver.
// Supported drivers:
//   - "bbolt": BoltDB-backed persistent storage (default)
//   - "json": JSON file-backed storage
//   - "memory": process-local storage, nothing survives a restart
//
// capacity is the retention bound N; zero or negative selects DefaultCapacity.
func NewStore(driver, path string, capacity int) (Store, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))

	if driver == "memory" {
		return NewMemoryStore(capacity), nil
	}
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	switch driver {
	case "bbolt":
		return NewBoltStore(path, capacity)
	case "json":
		return NewJSONStore(path, capacity)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (supported: %v)", driver, SupportedDrivers)
	}
}
