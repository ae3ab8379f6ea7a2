package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

func TestTimeBound(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := NewTimeBound(10 * time.Second)
	tb.now = func() time.Time { return now }
	tb.Start()

	deadline, ok := tb.Deadline()
	assert.True(t, ok)
	assert.Equal(t, now.Add(10*time.Second), deadline)

	assert.False(t, tb.ShouldStop())
	now = now.Add(9 * time.Second)
	assert.False(t, tb.ShouldStop())
	now = now.Add(time.Second)
	assert.True(t, tb.ShouldStop())
	assert.Contains(t, tb.Reason(), "10s")
}

func TestCountBound(t *testing.T) {
	visited := NewExactSet()
	cb := NewCountBound(2, visited)

	assert.False(t, cb.ShouldStop())
	visited.TryMarkVisited("a")
	assert.False(t, cb.ShouldStop())
	visited.TryMarkVisited("b")
	assert.True(t, cb.ShouldStop())
	assert.Contains(t, cb.Reason(), "2")
}

func TestNewStopPolicy(t *testing.T) {
	p, err := NewStopPolicy(types.StopByTime, time.Second, 0, nil)
	require.NoError(t, err)
	assert.IsType(t, &TimeBound{}, p)

	p, err = NewStopPolicy(types.StopByCount, 0, 3, NewExactSet())
	require.NoError(t, err)
	assert.IsType(t, &CountBound{}, p)

	_, err = NewStopPolicy(types.StopByTime, 0, 0, nil)
	assert.Error(t, err)
	_, err = NewStopPolicy(types.StopByCount, 0, 0, NewExactSet())
	assert.Error(t, err)
	_, err = NewStopPolicy("depth", time.Second, 1, nil)
	assert.Error(t, err)
}
