package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(ctx context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitReady(t *testing.T) {
	p := &flakyPinger{failures: 3}
	attempts, err := WaitReady(context.Background(), p, time.Millisecond, zap.NewNop())
	assert.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, p.calls)
}

func TestWaitReady_Immediate(t *testing.T) {
	attempts, err := WaitReady(context.Background(), NewMemory(), time.Hour, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWaitReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := &flakyPinger{failures: 1 << 30}
	attempts, err := WaitReady(ctx, p, 5*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, attempts, 1)
}
