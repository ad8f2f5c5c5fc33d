package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallWithRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	got, err := CallWithRetry(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	}, 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
}

func TestCallWithRetryExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("always broken")
	attempts := 0
	_, err := CallWithRetry(context.Background(), func() (int, error) {
		attempts++
		return 0, wantErr
	}, 3, time.Millisecond)

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, attempts)
}

func TestCallWithRetryReturnsWithoutFinalBackoff(t *testing.T) {
	wantErr := errors.New("always broken")
	start := time.Now()

	_, err := CallWithRetry(context.Background(), func() (int, error) {
		return 0, wantErr
	}, 1, time.Hour)

	require.ErrorIs(t, err, wantErr)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallWithRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CallWithRetry(ctx, func() (int, error) {
		return 0, errors.New("fail once to reach the backoff")
	}, 5, time.Second)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestStringList(t *testing.T) {
	var list StringList
	require.NoError(t, list.Set("a:2379"))
	require.NoError(t, list.Set("b:2379"))

	assert.Equal(t, StringList{"a:2379", "b:2379"}, list)
	assert.Equal(t, "a:2379,b:2379", list.String())
}
