// Package catalog holds the set of generation models offered by the service.
package catalog

import (
	"context"
	"fmt"
	"sync"
)

// State is the load lifecycle of a Catalog.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Empty
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Fetcher retrieves model ids from the service.
type Fetcher func(ctx context.Context) ([]string, error)

// Catalog is loaded at most once and is read-only afterwards. A failed or
// empty load leaves no model selectable.
type Catalog struct {
	mu     sync.RWMutex
	state  State
	models []string
	set    map[string]struct{}
	err    error
}

// New returns an unloaded catalog.
func New() *Catalog {
	return &Catalog{set: make(map[string]struct{})}
}

// Load runs fetch once. Later calls return the first outcome without fetching.
func (c *Catalog) Load(ctx context.Context, fetch Fetcher) error {
	c.mu.Lock()
	if c.state != Unloaded {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.state = Loading
	c.mu.Unlock()

	models, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = Failed
		c.err = fmt.Errorf("load catalog: %w", err)
		return c.err
	}
	for _, m := range models {
		if m == "" {
			continue
		}
		if _, dup := c.set[m]; dup {
			continue
		}
		c.set[m] = struct{}{}
		c.models = append(c.models, m)
	}
	if len(c.models) == 0 {
		c.state = Empty
	} else {
		c.state = Loaded
	}
	return nil
}

// State returns the lifecycle state.
func (c *Catalog) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Models returns the model ids in service order.
func (c *Catalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// Contains reports whether id can be selected.
func (c *Catalog) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.set[id]
	return ok
}
