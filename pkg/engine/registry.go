package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Driver starts an Engine for the given browser type (e.g. "chromium", "firefox").
type Driver func(ctx context.Context, browser string) (Engine, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available under name. Driver packages call it from init.
// Registering the same name twice panics.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if driver == nil {
		panic("engine: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("engine: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Start starts the engine registered under name.
func Start(ctx context.Context, name, browser string) (Engine, error) {
	driversMu.RLock()
	driver, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, Drivers())
	}

	eng, err := driver(ctx, browser)
	if err != nil {
		return nil, fmt.Errorf("start %s engine: %w", name, err)
	}
	return eng, nil
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
