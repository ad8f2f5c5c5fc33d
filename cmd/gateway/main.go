package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"net/http"
	_ "net/http/pprof"

	"golang.org/x/sync/errgroup"

	"github.com/upperfaas/upperfaas/pkg/gateway"
	"github.com/upperfaas/upperfaas/pkg/launcher"
	"github.com/upperfaas/upperfaas/pkg/registry"
	"github.com/upperfaas/upperfaas/pkg/utils"
)

type GatewayConfig struct {
	General struct {
		Address       string           `env:"GATEWAY_ADDRESS"`
		RegistryType  string           `env:"REGISTRY_TYPE"`
		EtcdEndpoints utils.StringList `env:"ETCD_ENDPOINTS"`
		EtcdPrefix    string           `env:"ETCD_PREFIX"`
	}
	Runtime struct {
		Type       string `env:"RUNTIME_TYPE"`
		AutoRemove bool   `env:"RUNTIME_AUTOREMOVE"`
		Network    string `env:"RUNTIME_NETWORK"`
	}
	Log struct {
		Level    string `env:"LOG_LEVEL"`
		Format   string `env:"LOG_FORMAT"`
		FilePath string `env:"LOG_FILE"`
	}
}

func parseArgs() (gc GatewayConfig) {
	flag.StringVar(&(gc.General.Address), "address", "0.0.0.0:8080", "Gateway address. (Env: GATEWAY_ADDRESS)")
	flag.StringVar(&(gc.General.RegistryType), "registry", "memory", "Registry backend (memory or etcd). (Env: REGISTRY_TYPE)")
	flag.Var(&(gc.General.EtcdEndpoints), "etcd-endpoint", "Etcd endpoint, repeatable. (Env: ETCD_ENDPOINTS)")
	flag.StringVar(&(gc.General.EtcdPrefix), "etcd-prefix", "", "Key prefix in etcd. (Env: ETCD_PREFIX)")
	flag.StringVar(&(gc.Runtime.Type), "runtime", "docker", "Container runtime type (docker or mock). (Env: RUNTIME_TYPE)")
	flag.BoolVar(&(gc.Runtime.AutoRemove), "auto-remove", false, "Auto remove containers. (Env: RUNTIME_AUTOREMOVE)")
	flag.StringVar(&(gc.Runtime.Network), "network", "upperfaas", "Docker network for function containers. (Env: RUNTIME_NETWORK)")
	flag.StringVar(&(gc.Log.Level), "log-level", "info", "Log level (debug, info, warn, error) (Env: LOG_LEVEL)")
	flag.StringVar(&(gc.Log.Format), "log-format", "text", "Log format (json, dev or text) (Env: LOG_FORMAT)")
	flag.StringVar(&(gc.Log.FilePath), "log-file", "", "Log file path (defaults to stdout) (Env: LOG_FILE)")

	flag.Parse()
	return
}

func main() {
	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()
	gc := parseArgs()
	logger := utils.SetupLogger(gc.Log.Level, gc.Log.Format, gc.Log.FilePath)

	logger.Info("Current configuration", "config", gc)

	var store registry.Store
	switch gc.General.RegistryType {
	case "etcd":
		endpoints := gc.General.EtcdEndpoints
		if len(endpoints) == 0 {
			endpoints = utils.StringList{"localhost:2379"}
		}
		etcdStore, err := registry.NewEtcdStore(
			endpoints,
			registry.Options{Prefix: gc.General.EtcdPrefix},
			logger,
		)
		if err != nil {
			logger.Error("Failed to connect to etcd", "error", err)
			os.Exit(1)
		}
		// The cache keeps lookups local while the etcd watch propagates
		// writes from other gateways.
		cachedStore, err := registry.NewCachedStore(etcdStore, logger)
		if err != nil {
			logger.Error("Failed to prime the metadata cache", "error", err)
			etcdStore.Close()
			os.Exit(1)
		}
		store = cachedStore
	case "memory":
		store = registry.NewMemoryStore()
	default:
		logger.Error("Unknown registry type", "registry", gc.General.RegistryType)
		os.Exit(1)
	}
	defer store.Close()

	var runtime launcher.ContainerRuntime
	switch gc.Runtime.Type {
	case "docker":
		dockerRuntime, err := launcher.NewDockerRuntime(gc.Runtime.AutoRemove, gc.General.Address, gc.Runtime.Network, logger)
		if err != nil {
			logger.Error("Failed to create Docker runtime", "error", err)
			os.Exit(1)
		}
		runtime = dockerRuntime
	case "mock":
		runtime = launcher.NewMockRuntime(store, logger)
	default:
		logger.Error("No runtime specified")
		os.Exit(1)
	}

	server := gateway.NewServer(gc.General.Address, store, runtime, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Gateway exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Gateway stopped")
}
