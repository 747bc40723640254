package advisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/collabengine/types"
)

func fastConfig() Config {
	return Config{
		Timeout:             50 * time.Millisecond,
		MaxRetries:          1,
		InitialBackoff:      time.Millisecond,
		BreakerThreshold:    2,
		BreakerResetTimeout: time.Hour,
	}
}

func TestClient_NilAdvisorUnavailable(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, fastConfig(), zap.NewNop())
	assert.False(t, c.Available())

	_, err := c.Advise(context.Background(), KindCollaborationStructure, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrAdvisorUnavailable))

	hint, ok := c.Structure(context.Background(), nil)
	assert.False(t, ok)
	assert.Empty(t, hint.Topology)
}

func TestClient_RetriesOnceThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	a := Func(func(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return map[string]any{"topology": "Hierarchical", "protocols": []any{"daily_standup", 3}}, nil
	})

	c := NewClient(a, fastConfig(), nil)
	hint, ok := c.Structure(context.Background(), map[string]any{"agents": 4})

	require.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "hierarchical", hint.Topology)
	assert.Equal(t, []string{"daily_standup"}, hint.Protocols)
}

func TestClient_FailureAbsorbedAndBreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	a := Func(func(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error) {
		calls.Add(1)
		return nil, errors.New("down")
	})

	c := NewClient(a, fastConfig(), nil)
	for i := 0; i < 2; i++ {
		_, ok := c.Elaborate(context.Background(), nil)
		assert.False(t, ok)
	}
	// 每次调用含一次重试
	assert.Equal(t, int32(4), calls.Load())
	assert.False(t, c.Available())

	_, ok := c.Alternatives(context.Background(), nil)
	assert.False(t, ok)
	assert.Equal(t, int32(4), calls.Load(), "open breaker must short-circuit")
}

func TestClient_PerCallTimeout(t *testing.T) {
	t.Parallel()

	a := Func(func(ctx context.Context, kind RequestKind, payload map[string]any) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cfg := fastConfig()
	cfg.Timeout = 5 * time.Millisecond

	start := time.Now()
	_, ok := NewClient(a, cfg, nil).Structure(context.Background(), nil)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := Static{KindConflictElaboration: {"rationale": "split the GPU pool"}}
	c := NewClient(s, fastConfig(), nil)

	hint, ok := c.Elaborate(context.Background(), nil)
	require.True(t, ok)
	assert.Equal(t, "split the GPU pool", hint.Rationale)

	alt, ok := c.Alternatives(context.Background(), nil)
	require.True(t, ok)
	assert.Empty(t, alt.Alternatives)
}
