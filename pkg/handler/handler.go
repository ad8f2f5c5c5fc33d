// Package handler implements the invocation contract of the toupper function:
// a JSON document with a single "input" field in, a JSON document with a
// single "result" field out.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Transformer is the pure transformation the handler delegates to. The
// concrete service is passed in explicitly, there is no global wiring.
type Transformer interface {
	Upper(string) string
}

// InvokeRequest is the external input shape. Input is a pointer so that an
// absent field can be told apart from an empty string.
type InvokeRequest struct {
	Input *string `json:"input"`
}

// InvokeResponse is the external output shape.
type InvokeResponse struct {
	Result string `json:"result"`
}

// ValidationError marks invocations that were rejected before the
// transformation ran. The platform adapter maps it to a client error instead
// of an instance failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid invocation: %s", e.Reason)
}

// HTTPStatus lets transport layers map the error without importing them here.
func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

// ErrMissingInput is returned when the input field is absent or null.
var ErrMissingInput = &ValidationError{Reason: "missing input field"}

// ToUpper handles one invocation at a time and keeps no state between
// invocations, so a single instance is safe to invoke concurrently.
type ToUpper struct {
	transformer Transformer
}

func NewToUpper(t Transformer) *ToUpper {
	return &ToUpper{transformer: t}
}

// Handle transforms the request input. An absent input is rejected rather
// than defaulted to "", so malformed clients are surfaced instead of masked.
func (h *ToUpper) Handle(_ context.Context, req *InvokeRequest) (*InvokeResponse, error) {
	if req == nil || req.Input == nil {
		return nil, ErrMissingInput
	}
	return &InvokeResponse{Result: h.transformer.Upper(*req.Input)}, nil
}

// HandleRaw adapts the platform envelope: raw payload bytes in, raw response
// bytes out. Malformed JSON is a validation error, not a crash.
func (h *ToUpper) HandleRaw(ctx context.Context, data []byte) ([]byte, error) {
	var req InvokeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &ValidationError{Reason: "payload is not valid JSON"}
	}

	resp, err := h.Handle(ctx, &req)
	if err != nil {
		return nil, err
	}

	return json.Marshal(resp)
}
