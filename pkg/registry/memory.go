package registry

import (
	"context"
	"sort"
	"sync"
)

var _ Store = &MemoryStore{}

// MemoryStore keeps everything in process. It is the default for single-node
// deployments and for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	functions map[string]*FunctionMetadata
	instances map[string]map[string]Instance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		functions: make(map[string]*FunctionMetadata),
		instances: make(map[string]map[string]Instance),
	}
}

func (m *MemoryStore) PutFunction(_ context.Context, meta *FunctionMetadata) error {
	if meta == nil {
		return ErrMetadataIsNil
	}
	if meta.Name == "" {
		return ErrFunctionNameIsEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *meta
	m.functions[meta.Name] = &copied
	return nil
}

func (m *MemoryStore) GetFunction(_ context.Context, name string) (*FunctionMetadata, error) {
	if name == "" {
		return nil, ErrFunctionNameIsEmpty
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.functions[name]
	if !ok {
		return nil, ErrFunctionNotFound
	}
	copied := *meta
	return &copied, nil
}

func (m *MemoryStore) ListFunctions(_ context.Context) ([]*FunctionMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	functions := make([]*FunctionMetadata, 0, len(m.functions))
	for _, meta := range m.functions {
		copied := *meta
		functions = append(functions, &copied)
	}
	return functions, nil
}

func (m *MemoryStore) DeleteFunction(_ context.Context, name string) error {
	if name == "" {
		return ErrFunctionNameIsEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.functions[name]; !ok {
		return ErrFunctionNotFound
	}
	delete(m.functions, name)
	delete(m.instances, name)
	return nil
}

func (m *MemoryStore) AddInstance(_ context.Context, function string, instance Instance) error {
	if function == "" {
		return ErrFunctionNameIsEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.functions[function]; !ok {
		return ErrFunctionNotFound
	}
	if m.instances[function] == nil {
		m.instances[function] = make(map[string]Instance)
	}
	m.instances[function][instance.Id] = instance
	return nil
}

func (m *MemoryStore) RemoveInstance(_ context.Context, function string, instanceId string) error {
	if function == "" {
		return ErrFunctionNameIsEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[function][instanceId]; !ok {
		return ErrInstanceNotFound
	}
	delete(m.instances[function], instanceId)
	return nil
}

func (m *MemoryStore) ListInstances(_ context.Context, function string) ([]Instance, error) {
	if function == "" {
		return nil, ErrFunctionNameIsEmpty
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.functions[function]; !ok {
		return nil, ErrFunctionNotFound
	}

	instances := make([]Instance, 0, len(m.instances[function]))
	for _, instance := range m.instances[function] {
		instances = append(instances, instance)
	}
	// Stable order so the scheduler cycles instances predictably.
	sort.Slice(instances, func(i, j int) bool { return instances[i].Id < instances[j].Id })
	return instances, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
