package main

import (
	"context"

	"github.com/upperfaas/upperfaas/pkg/handler"
	"github.com/upperfaas/upperfaas/pkg/runtime"
	"github.com/upperfaas/upperfaas/pkg/transform"
)

func main() {
	h := handler.NewToUpper(transform.New())

	fn := runtime.New(30)
	fn.Ready(func(ctx context.Context, req *runtime.Request) (*runtime.Response, error) {
		data, err := h.HandleRaw(ctx, req.Data)
		if err != nil {
			return nil, err
		}
		return &runtime.Response{Data: data, Id: req.Id}, nil
	})
}
