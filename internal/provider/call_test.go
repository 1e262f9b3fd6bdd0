package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_ReturnsResult(t *testing.T) {
	got, err := Call(context.Background(), time.Second, func(context.Context) (string, error) {
		return "KJV", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "KJV", got)
}

func TestCall_WrapsErrors(t *testing.T) {
	refused := errors.New("connection refused")
	_, err := Call(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, refused
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, refused)
}

func TestCall_AbandonsCallIgnoringContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Call(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCall_HonoursCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, 0, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestCall_RecoversPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := Call(context.Background(), time.Second, func(context.Context) (int, error) {
			panic("provider bug")
		})
		assert.ErrorIs(t, err, ErrProviderUnavailable)
		assert.Contains(t, err.Error(), "provider bug")
	})
}
