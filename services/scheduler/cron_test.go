package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/logger"
)

func TestScheduler(t *testing.T) {
	s := New(logsvc.NewSilentLogger())

	assert.Error(t, s.Add("broken", "not a spec", func(context.Context) error { return nil }))

	var runs int32
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("counter", "@every 1s", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(1))
	assert.Error(t, s.ctx.Err())
}
