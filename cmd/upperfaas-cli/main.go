package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/upperfaas/upperfaas/pkg/registry"
)

var gatewayFlag = &cli.StringFlag{
	Name:    "gateway",
	Usage:   "address of the gateway",
	Value:   "localhost:8080",
	Aliases: []string{"g"},
}

var dataFlag = &cli.StringFlag{
	Name:    "data",
	Usage:   "JSON payload to be passed to the function",
	Value:   "",
	Aliases: []string{"d"},
}

var timeoutFlag = &cli.DurationFlag{
	Name:    "timeout",
	Usage:   "example: 30s, 1m, 1h",
	Aliases: []string{"t"},
	Value:   30 * time.Second,
}

func main() {
	cmd := &cli.Command{
		Name:  "upperfaas-cli",
		Usage: "talk to the UpperFaaS gateway API",
		Flags: []cli.Flag{
			gatewayFlag,
			timeoutFlag,
		},
		Commands: []*cli.Command{
			{
				Name:    "function",
				Aliases: []string{"fn"},
				Usage:   "manage and invoke functions",
				Commands: []*cli.Command{
					{
						Name:      "create",
						Usage:     "register a function",
						ArgsUsage: "function name",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "image",
								Usage: "container image of the function",
							},
							&cli.IntFlag{
								Name:  "memory",
								Usage: "memory limit in MB",
								Value: 128,
							},
							&cli.IntFlag{
								Name:  "function-timeout",
								Usage: "idle timeout of instances in seconds",
								Value: 30,
							},
						},
						Action: func(ctx context.Context, cmd *cli.Command) error {
							name := cmd.Args().Get(0)
							meta := &registry.FunctionMetadata{
								Name:     name,
								ImageTag: cmd.String("image"),
								Config: registry.Config{
									MemLimit:       int64(cmd.Int("memory")) * 1024 * 1024,
									TimeoutSeconds: int32(cmd.Int("function-timeout")),
								},
							}
							client := newGatewayClient(cmd.String("gateway"), cmd.Duration("timeout"))
							if err := client.CreateFunction(ctx, meta); err != nil {
								return err
							}
							fmt.Printf("%v\n", name)
							return nil
						},
					},
					{
						Name:      "start",
						Usage:     "start an instance of a function",
						ArgsUsage: "function name",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							name := cmd.Args().Get(0)
							client := newGatewayClient(cmd.String("gateway"), cmd.Duration("timeout"))
							id, err := client.StartInstance(ctx, name)
							if err != nil {
								return err
							}
							fmt.Printf("%v\n", id)
							return nil
						},
					},
					{
						Name:      "call",
						Usage:     "call a function",
						ArgsUsage: "function name",
						Flags: []cli.Flag{
							dataFlag,
						},
						Action: func(ctx context.Context, cmd *cli.Command) error {
							name := cmd.Args().Get(0)
							client := newGatewayClient(cmd.String("gateway"), cmd.Duration("timeout"))
							response, err := client.CallFunction(ctx, name, []byte(cmd.String("data")))
							if err != nil {
								return err
							}
							fmt.Printf("%v\n", string(response))
							return nil
						},
					},
					{
						Name:  "list",
						Usage: "list registered functions",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							client := newGatewayClient(cmd.String("gateway"), cmd.Duration("timeout"))
							functions, err := client.ListFunctions(ctx)
							if err != nil {
								return err
							}
							for _, fn := range functions {
								fmt.Printf("%s\t%s\n", fn.Name, fn.ImageTag)
							}
							return nil
						},
					},
					{
						Name:      "delete",
						Usage:     "delete a function",
						ArgsUsage: "function name",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							name := cmd.Args().Get(0)
							client := newGatewayClient(cmd.String("gateway"), cmd.Duration("timeout"))
							if err := client.DeleteFunction(ctx, name); err != nil {
								return err
							}
							fmt.Printf("%v\n", name)
							return nil
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
