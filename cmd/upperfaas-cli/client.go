package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upperfaas/upperfaas/pkg/registry"
)

// gatewayClient wraps the gateway HTTP API for the CLI commands.
type gatewayClient struct {
	address string
	client  *http.Client
}

func newGatewayClient(address string, timeout time.Duration) *gatewayClient {
	return &gatewayClient{
		address: address,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *gatewayClient) CreateFunction(ctx context.Context, meta *registry.FunctionMetadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/registry/function/%s", c.address, meta.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create failed with status %d: %s", status, body)
	}
	return nil
}

func (c *gatewayClient) StartInstance(ctx context.Context, name string) (string, error) {
	url := fmt.Sprintf("http://%s/function/%s/start", c.address, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusAccepted {
		return "", fmt.Errorf("start failed with status %d: %s", status, body)
	}

	var resp struct {
		InstanceId string `json:"instance_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.InstanceId, nil
}

func (c *gatewayClient) CallFunction(ctx context.Context, name string, data []byte) ([]byte, error) {
	url := fmt.Sprintf("http://%s/function/%s", c.address, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("call failed with status %d: %s", status, body)
	}
	return body, nil
}

func (c *gatewayClient) ListFunctions(ctx context.Context) ([]*registry.FunctionMetadata, error) {
	url := fmt.Sprintf("http://%s/registry/functions", c.address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list failed with status %d: %s", status, body)
	}

	var functions []*registry.FunctionMetadata
	if err := json.Unmarshal(body, &functions); err != nil {
		return nil, err
	}
	return functions, nil
}

func (c *gatewayClient) DeleteFunction(ctx context.Context, name string) error {
	url := fmt.Sprintf("http://%s/registry/function/%s", c.address, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	body, status, err := c.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("delete failed with status %d: %s", status, body)
	}
	return nil
}

func (c *gatewayClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
