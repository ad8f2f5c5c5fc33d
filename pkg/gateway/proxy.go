package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPClient can perform any http request
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ForwardingClient relays an invocation payload to a function instance and
// carries the instance's response back unchanged.
type ForwardingClient struct {
	client HTTPClient
	logger *slog.Logger
}

// NewForwardingClient creates a ForwardingClient with a default http client.
func NewForwardingClient(logger *slog.Logger) *ForwardingClient {
	return &ForwardingClient{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

// NewForwardingClientWithHTTPClient creates a ForwardingClient. The
// httpClient must implement the HTTPClient interface.
func NewForwardingClientWithHTTPClient(logger *slog.Logger, httpClient HTTPClient) *ForwardingClient {
	return &ForwardingClient{
		client: httpClient,
		logger: logger,
	}
}

// InvokeResult is the instance's answer: the status code is relayed to the
// external caller as-is so validation failures stay 400s end to end.
type InvokeResult struct {
	InvocationId string
	StatusCode   int
	Body         []byte
}

// Invoke sends the payload to the instance at the given address. An error is
// only returned when the instance could not be reached at all.
func (c *ForwardingClient) Invoke(ctx context.Context, instanceAddress string, payload []byte) (*InvokeResult, error) {
	invocationId := uuid.NewString()

	url := fmt.Sprintf("http://%s/invoke", instanceAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.logger.Error("error creating invocation request", "error", err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(invocationIDHeader, invocationId)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("error forwarding invocation", "instance", instanceAddress, "error", err)
		return nil, err
	}

	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("error closing the response body", "error", err)
		}
	}(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("error reading instance response", "error", err)
		return nil, err
	}

	return &InvokeResult{
		InvocationId: invocationId,
		StatusCode:   resp.StatusCode,
		Body:         body,
	}, nil
}

const invocationIDHeader = "X-Invocation-Id"
