package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/upperfaas/upperfaas/pkg/registry"
)

const (
	containerPrefix = "upperfaas-"
	functionPort    = "8050"
	defaultNetwork  = "upperfaas"
)

// Regex that matches all chars that are not valid in a container name
var forbiddenChars = regexp.MustCompile("[^a-zA-Z0-9_.-]")

var _ ContainerRuntime = &DockerRuntime{}

// DockerRuntime launches one container per instance. Instances find the
// gateway through injected environment variables and register themselves
// once they serve.
type DockerRuntime struct {
	cli            *client.Client
	autoRemove     bool
	gatewayAddress string
	networkName    string
	logger         *slog.Logger
}

func NewDockerRuntime(autoRemove bool, gatewayAddress, networkName string, logger *slog.Logger) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.WithHost("unix:///var/run/docker.sock"), client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not create Docker client: %w", err)
	}

	if networkName == "" {
		networkName = defaultNetwork
	}

	return &DockerRuntime{
		cli:            cli,
		autoRemove:     autoRemove,
		gatewayAddress: gatewayAddress,
		networkName:    networkName,
		logger:         logger,
	}, nil
}

func (d *DockerRuntime) Start(ctx context.Context, meta *registry.FunctionMetadata) (string, error) {
	if meta == nil {
		return "", registry.ErrMetadataIsNil
	}

	// Start by checking if the image exists locally already
	imageListArgs := filters.NewArgs()
	imageListArgs.Add("reference", meta.ImageTag)
	images, err := d.cli.ImageList(ctx, image.ListOptions{Filters: imageListArgs})
	if err != nil {
		return "", fmt.Errorf("could not list Docker images: %w", err)
	}

	if len(images) == 0 {
		d.logger.Info("Pulling image", "image", meta.ImageTag)
		reader, err := d.cli.ImagePull(ctx, meta.ImageTag, image.PullOptions{})
		if err != nil {
			d.logger.Error("Could not pull image", "image", meta.ImageTag, "error", err)
			return "", fmt.Errorf("could not pull image %s: %w", meta.ImageTag, err)
		}
		_, _ = io.Copy(os.Stdout, reader)
		_ = reader.Close()
		d.logger.Info("Pulled image", "image", meta.ImageTag)
	}

	d.logger.Debug("Creating container", "image", meta.ImageTag)
	containerName := containerPrefix + meta.Name + "-" + uuid.New().String()[:8]
	containerName = forbiddenChars.ReplaceAllString(containerName, "")

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image: meta.ImageTag,
			Env:   instanceEnv(meta, containerName, d.gatewayAddress),
			ExposedPorts: nat.PortSet{
				nat.Port(functionPort + "/tcp"): struct{}{},
			},
			Hostname: containerName,
		},
		&container.HostConfig{
			AutoRemove: d.autoRemove,
			Resources: container.Resources{
				Memory:    meta.Config.MemLimit,
				CPUQuota:  meta.Config.CpuQuota,
				CPUPeriod: meta.Config.CpuPeriod,
			},
		},
		&network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				d.networkName: {},
			},
		},
		nil,
		containerName,
	)
	if err != nil {
		return "", fmt.Errorf("could not create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("could not start container: %w", err)
	}

	d.logger.Info("Started instance", "function", meta.Name, "container", containerName)

	// The instance reports itself under its hostname, which Docker sets to
	// the container name.
	return containerName, nil
}

// instanceEnv is everything an instance needs to find the gateway and serve.
func instanceEnv(meta *registry.FunctionMetadata, containerName, gatewayAddress string) []string {
	env := []string{
		"GATEWAY_ADDRESS=" + gatewayAddress,
		"FUNCTION_NAME=" + meta.Name,
		"FUNCTION_ADDRESS=0.0.0.0:" + functionPort,
		// On the shared network the container name is routable.
		"FUNCTION_ADVERTISE_ADDRESS=" + containerName + ":" + functionPort,
	}
	if meta.Config.TimeoutSeconds > 0 {
		env = append(env, fmt.Sprintf("FUNCTION_TIMEOUT=%d", meta.Config.TimeoutSeconds))
	}
	return env
}

func (d *DockerRuntime) Stop(ctx context.Context, instanceId string) error {
	if err := d.cli.ContainerStop(ctx, instanceId, container.StopOptions{}); err != nil {
		return fmt.Errorf("could not stop container %s: %w", instanceId, err)
	}

	if !d.autoRemove {
		if err := d.cli.ContainerRemove(ctx, instanceId, container.RemoveOptions{}); err != nil {
			d.logger.Error("Could not remove container", "container", instanceId, "error", err)
		}
	}

	d.logger.Info("Stopped instance", "container", instanceId)
	return nil
}
