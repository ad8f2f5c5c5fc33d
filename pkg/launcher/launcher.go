// Package launcher starts and stops function instances. The docker runtime
// is the real deployment path; the mock runtime runs instances in-process
// for tests and local development.
package launcher

import (
	"context"

	"github.com/upperfaas/upperfaas/pkg/registry"
)

// ContainerRuntime abstracts over where function instances actually run.
type ContainerRuntime interface {
	// Start launches one instance of the function and returns its instance ID.
	Start(ctx context.Context, meta *registry.FunctionMetadata) (string, error)
	// Stop terminates the instance with the given ID.
	Stop(ctx context.Context, instanceId string) error
}
