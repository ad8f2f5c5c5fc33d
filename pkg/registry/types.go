// Package registry tracks the functions known to the platform and the live
// instances serving them.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	ErrFunctionNotFound    = errors.New("registry: function not found")
	ErrFunctionNameIsEmpty = errors.New("registry: function name is empty")
	ErrInstanceNotFound    = errors.New("registry: instance not found")
	ErrMetadataIsNil       = errors.New("registry: metadata is nil")
)

// Config carries the deployment knobs of a function. These correspond to the
// memory/timeout settings a managed platform exposes per function.
type Config struct {
	MemLimit       int64 `json:"mem_limit"`
	CpuQuota       int64 `json:"cpu_quota"`
	CpuPeriod      int64 `json:"cpu_period"`
	TimeoutSeconds int32 `json:"timeout_seconds"`
}

// FunctionMetadata represents the data required to run a function.
type FunctionMetadata struct {
	Name     string `json:"name"`
	ImageTag string `json:"image_tag"`
	Config   Config `json:"config"`
}

// Instance is one running copy of a function.
type Instance struct {
	Id        string    `json:"id"`
	Address   string    `json:"address"`
	StartedAt time.Time `json:"started_at"`
}

// EventType provides the type of change observed in the store.
type EventType int

const (
	EventTypeUnknown EventType = iota
	EventTypePut
	EventTypeDelete
)

// Event encapsulates function metadata change notifications.
type Event struct {
	Type     EventType
	Name     string
	Function *FunctionMetadata
}

// Store must provide a thread safe way to manage function metadata and
// instance membership.
type Store interface {
	PutFunction(ctx context.Context, meta *FunctionMetadata) error
	GetFunction(ctx context.Context, name string) (*FunctionMetadata, error)
	ListFunctions(ctx context.Context) ([]*FunctionMetadata, error)
	DeleteFunction(ctx context.Context, name string) error

	AddInstance(ctx context.Context, function string, instance Instance) error
	RemoveInstance(ctx context.Context, function string, instanceId string) error
	ListInstances(ctx context.Context, function string) ([]Instance, error)

	Close() error
}
