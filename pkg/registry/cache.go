package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// WatchableStore is a Store that can also stream function metadata changes.
type WatchableStore interface {
	Store
	WatchFunctions(ctx context.Context) (<-chan Event, <-chan error)
}

var _ Store = &CachedStore{}

// CachedStore layers a local metadata cache over a shared store. Function
// lookups are served from memory; the watch stream keeps the cache in sync
// with writes made by other gateways sharing the same backend. Instance
// records are not cached, they churn too fast to be worth it.
type CachedStore struct {
	inner  WatchableStore
	logger *slog.Logger

	mu        sync.RWMutex
	functions map[string]*FunctionMetadata

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCachedStore primes the cache from the inner store and starts consuming
// its watch stream. Close stops the watch and closes the inner store.
func NewCachedStore(inner WatchableStore, logger *slog.Logger) (*CachedStore, error) {
	c := &CachedStore{
		inner:     inner,
		logger:    logger,
		functions: make(map[string]*FunctionMetadata),
		done:      make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	// Prime before watching so lookups never start cold.
	functions, err := inner.ListFunctions(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	for _, meta := range functions {
		c.functions[meta.Name] = meta
	}

	events, errs := inner.WatchFunctions(ctx)
	go c.consume(events, errs)

	return c, nil
}

func (c *CachedStore) consume(events <-chan Event, errs <-chan error) {
	defer close(c.done)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.apply(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.logger.Error("Watch stream error", "error", err)
		}
	}
}

func (c *CachedStore) apply(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case EventTypePut:
		if ev.Function != nil {
			c.functions[ev.Name] = ev.Function
		}
	case EventTypeDelete:
		delete(c.functions, ev.Name)
	default:
		c.logger.Warn("Ignoring unknown event type", "type", ev.Type, "name", ev.Name)
	}
}

func (c *CachedStore) PutFunction(ctx context.Context, meta *FunctionMetadata) error {
	if err := c.inner.PutFunction(ctx, meta); err != nil {
		return err
	}

	// Apply our own write immediately, the watch echo may lag behind it.
	c.mu.Lock()
	c.functions[meta.Name] = meta
	c.mu.Unlock()
	return nil
}

func (c *CachedStore) GetFunction(ctx context.Context, name string) (*FunctionMetadata, error) {
	if name == "" {
		return nil, ErrFunctionNameIsEmpty
	}

	c.mu.RLock()
	meta, ok := c.functions[name]
	c.mu.RUnlock()
	if ok {
		return meta, nil
	}

	// A miss may just mean the watch has not caught up to a write from
	// another gateway yet.
	meta, err := c.inner.GetFunction(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.functions[name] = meta
	c.mu.Unlock()
	return meta, nil
}

func (c *CachedStore) ListFunctions(_ context.Context) ([]*FunctionMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	functions := make([]*FunctionMetadata, 0, len(c.functions))
	for _, meta := range c.functions {
		functions = append(functions, meta)
	}
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })
	return functions, nil
}

func (c *CachedStore) DeleteFunction(ctx context.Context, name string) error {
	if err := c.inner.DeleteFunction(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.functions, name)
	c.mu.Unlock()
	return nil
}

func (c *CachedStore) AddInstance(ctx context.Context, function string, instance Instance) error {
	return c.inner.AddInstance(ctx, function, instance)
}

func (c *CachedStore) RemoveInstance(ctx context.Context, function string, instanceId string) error {
	return c.inner.RemoveInstance(ctx, function, instanceId)
}

func (c *CachedStore) ListInstances(ctx context.Context, function string) ([]Instance, error) {
	return c.inner.ListInstances(ctx, function)
}

func (c *CachedStore) Close() error {
	c.cancel()
	<-c.done
	return c.inner.Close()
}
