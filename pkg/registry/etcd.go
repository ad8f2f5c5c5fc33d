package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	DefaultPrefix      = "upperfaas"
	DefaultDialTimeout = 5 * time.Second
)

// Options configures the etcd store.
type Options struct {
	// Prefix controls where data is stored. Defaults to DefaultPrefix when empty.
	Prefix string
	// DialTimeout overrides the etcd dial timeout. Zero uses DefaultDialTimeout.
	DialTimeout time.Duration
}

var _ Store = &EtcdStore{}

// EtcdStore keeps function metadata and instance membership in etcd so that
// several gateways can share one view of the platform.
type EtcdStore struct {
	cli    *clientv3.Client
	prefix string
	logger *slog.Logger
}

// NewEtcdStore connects to etcd using the provided endpoints and options.
func NewEtcdStore(endpoints []string, opts Options, logger *slog.Logger) (*EtcdStore, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("registry: at least one etcd endpoint is required")
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &EtcdStore{cli: cli, prefix: normalizePrefix(prefix), logger: logger}, nil
}

func (s *EtcdStore) Close() error {
	if s == nil || s.cli == nil {
		return nil
	}
	return s.cli.Close()
}

func (s *EtcdStore) PutFunction(ctx context.Context, meta *FunctionMetadata) error {
	if meta == nil {
		return ErrMetadataIsNil
	}
	if meta.Name == "" {
		return ErrFunctionNameIsEmpty
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	_, err = s.cli.Put(ctx, s.functionKey(meta.Name), string(payload))
	return err
}

func (s *EtcdStore) GetFunction(ctx context.Context, name string) (*FunctionMetadata, error) {
	if name == "" {
		return nil, ErrFunctionNameIsEmpty
	}

	resp, err := s.cli.Get(ctx, s.functionKey(name))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrFunctionNotFound
	}

	return decodeFunctionMetadata(resp.Kvs[0].Value, name)
}

func (s *EtcdStore) ListFunctions(ctx context.Context) ([]*FunctionMetadata, error) {
	resp, err := s.cli.Get(ctx, s.functionPrefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	functions := make([]*FunctionMetadata, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name := s.nameFromKey(string(kv.Key), s.functionPrefix())
		meta, err := decodeFunctionMetadata(kv.Value, name)
		if err != nil {
			s.logger.Error("failed to decode function metadata", "name", name, "error", err)
			continue
		}
		functions = append(functions, meta)
	}
	return functions, nil
}

func (s *EtcdStore) DeleteFunction(ctx context.Context, name string) error {
	if name == "" {
		return ErrFunctionNameIsEmpty
	}

	resp, err := s.cli.Delete(ctx, s.functionKey(name))
	if err != nil {
		return err
	}
	if resp.Deleted == 0 {
		return ErrFunctionNotFound
	}

	// Drop the instance records too; a function without metadata cannot be invoked.
	if _, err := s.cli.Delete(ctx, s.instancePrefix(name), clientv3.WithPrefix()); err != nil {
		s.logger.Error("failed to delete instance records", "function", name, "error", err)
	}
	return nil
}

func (s *EtcdStore) AddInstance(ctx context.Context, function string, instance Instance) error {
	if function == "" {
		return ErrFunctionNameIsEmpty
	}
	if _, err := s.GetFunction(ctx, function); err != nil {
		return err
	}

	payload, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = s.cli.Put(ctx, s.instanceKey(function, instance.Id), string(payload))
	return err
}

func (s *EtcdStore) RemoveInstance(ctx context.Context, function string, instanceId string) error {
	if function == "" {
		return ErrFunctionNameIsEmpty
	}

	resp, err := s.cli.Delete(ctx, s.instanceKey(function, instanceId))
	if err != nil {
		return err
	}
	if resp.Deleted == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *EtcdStore) ListInstances(ctx context.Context, function string) ([]Instance, error) {
	if function == "" {
		return nil, ErrFunctionNameIsEmpty
	}
	if _, err := s.GetFunction(ctx, function); err != nil {
		return nil, err
	}

	resp, err := s.cli.Get(ctx, s.instancePrefix(function), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			s.logger.Error("failed to decode instance", "function", function, "error", err)
			continue
		}
		instances = append(instances, instance)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Id < instances[j].Id })
	return instances, nil
}

// WatchFunctions streams function metadata changes. Gateways use it to keep
// local caches in sync when several of them share one etcd cluster.
func (s *EtcdStore) WatchFunctions(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		watch := s.cli.Watch(ctx, s.functionPrefix(), clientv3.WithPrefix())
		for {
			select {
			case <-ctx.Done():
				return
			case resp, ok := <-watch:
				if !ok {
					return
				}
				if err := resp.Err(); err != nil {
					select {
					case errs <- err:
					default:
					}
					continue
				}
				for _, ev := range resp.Events {
					name := s.nameFromKey(string(ev.Kv.Key), s.functionPrefix())
					switch ev.Type {
					case mvccpb.PUT:
						meta, err := decodeFunctionMetadata(ev.Kv.Value, name)
						if err != nil {
							s.logger.Error("failed to decode function metadata", "name", name, "error", err)
							continue
						}
						select {
						case events <- Event{Type: EventTypePut, Name: name, Function: meta}:
						case <-ctx.Done():
							return
						}
					case mvccpb.DELETE:
						select {
						case events <- Event{Type: EventTypeDelete, Name: name}:
						case <-ctx.Done():
							return
						}
					default:
						s.logger.Warn("received unknown event type", "type", ev.Type, "name", name)
					}
				}
			}
		}
	}()

	return events, errs
}

func (s *EtcdStore) functionPrefix() string {
	return s.prefix + "/functions"
}

func (s *EtcdStore) functionKey(name string) string {
	return s.functionPrefix() + "/" + name
}

func (s *EtcdStore) instancePrefix(function string) string {
	return s.prefix + "/instances/" + function
}

func (s *EtcdStore) instanceKey(function, instanceId string) string {
	return s.instancePrefix(function) + "/" + instanceId
}

func (s *EtcdStore) nameFromKey(key, prefix string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
}

func decodeFunctionMetadata(raw []byte, name string) (*FunctionMetadata, error) {
	var meta FunctionMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if meta.Name == "" {
		meta.Name = name
	}
	return &meta, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}
