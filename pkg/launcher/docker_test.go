package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upperfaas/upperfaas/pkg/registry"
)

func TestInstanceEnvInjectsTimeout(t *testing.T) {
	meta := &registry.FunctionMetadata{
		Name:     "toupper",
		ImageTag: "toupper:latest",
		Config:   registry.Config{TimeoutSeconds: 45},
	}

	env := instanceEnv(meta, "upperfaas-toupper-abc123", "gateway:8080")

	assert.Contains(t, env, "GATEWAY_ADDRESS=gateway:8080")
	assert.Contains(t, env, "FUNCTION_NAME=toupper")
	assert.Contains(t, env, "FUNCTION_ADDRESS=0.0.0.0:8050")
	assert.Contains(t, env, "FUNCTION_ADVERTISE_ADDRESS=upperfaas-toupper-abc123:8050")
	assert.Contains(t, env, "FUNCTION_TIMEOUT=45")
}

func TestInstanceEnvOmitsUnsetTimeout(t *testing.T) {
	meta := &registry.FunctionMetadata{Name: "toupper", ImageTag: "toupper:latest"}

	env := instanceEnv(meta, "upperfaas-toupper-abc123", "gateway:8080")

	for _, entry := range env {
		assert.NotContains(t, entry, "FUNCTION_TIMEOUT")
	}
}
