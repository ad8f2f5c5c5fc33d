package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upperfaas/upperfaas/pkg/transform"
)

func str(s string) *string {
	return &s
}

func TestHandle(t *testing.T) {
	h := NewToUpper(transform.New())

	tests := []struct {
		name  string
		input *string
		want  string
	}{
		{"sentence", str("Welcome to happy land!"), "WELCOME TO HAPPY LAND!"},
		{"empty string is valid", str(""), ""},
		{"mixed", str("MiXeD123!@#"), "MIXED123!@#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.Handle(context.Background(), &InvokeRequest{Input: tt.input})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Result)
		})
	}
}

func TestHandleMissingInput(t *testing.T) {
	h := NewToUpper(transform.New())

	resp, err := h.Handle(context.Background(), &InvokeRequest{})
	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrMissingInput)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, http.StatusBadRequest, vErr.HTTPStatus())
}

func TestHandleNilRequest(t *testing.T) {
	h := NewToUpper(transform.New())

	_, err := h.Handle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestHandleRaw(t *testing.T) {
	h := NewToUpper(transform.New())

	out, err := h.HandleRaw(context.Background(), []byte(`{"input":"Welcome to happy land!"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"WELCOME TO HAPPY LAND!"}`, string(out))
}

func TestHandleRawErrors(t *testing.T) {
	h := NewToUpper(transform.New())

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `this is not json`},
		{"empty payload", ``},
		{"missing input field", `{}`},
		{"null input", `{"input":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.HandleRaw(context.Background(), []byte(tt.payload))
			assert.Nil(t, out)

			var vErr *ValidationError
			assert.True(t, errors.As(err, &vErr), "expected a validation error, got %v", err)
		})
	}
}

func TestHandleConcurrentInvocations(t *testing.T) {
	h := NewToUpper(transform.New())

	inputs := []string{"alpha", "Bravo", "CHARLIE", "delta 4", ""}
	want := []string{"ALPHA", "BRAVO", "CHARLIE", "DELTA 4", ""}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx := i % len(inputs)
			payload, err := json.Marshal(InvokeRequest{Input: &inputs[idx]})
			assert.NoError(t, err)

			out, err := h.HandleRaw(context.Background(), payload)
			assert.NoError(t, err)

			var resp InvokeResponse
			assert.NoError(t, json.Unmarshal(out, &resp))
			assert.Equal(t, want[idx], resp.Result)
		}(i)
	}
	wg.Wait()
}
