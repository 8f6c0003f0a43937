package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_etl/internal/shared/errs"
)

type mockServerTimer struct {
	ServerTimeFunc func(ctx context.Context) (time.Time, error)
}

func (m *mockServerTimer) ServerTime(ctx context.Context) (time.Time, error) {
	return m.ServerTimeFunc(ctx)
}

func TestSkewClock(t *testing.T) {
	local := time.Date(2024, 1, 5, 4, 0, 0, 0, time.UTC)
	server := local.Add(1500 * time.Millisecond)

	src := &mockServerTimer{ServerTimeFunc: func(ctx context.Context) (time.Time, error) { return server, nil }}
	c := NewSkewClock(src)
	c.local = func() time.Time { return local }

	assert.Equal(t, local, c.Now(), "no correction before the first sync")

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 1500*time.Millisecond, c.Offset())
	assert.Equal(t, server, c.Now())

	// 失敗時は以前のずれを維持する
	src.ServerTimeFunc = func(ctx context.Context) (time.Time, error) { return time.Time{}, errors.New("timeout") }
	err := c.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNetwork))
	assert.Equal(t, 1500*time.Millisecond, c.Offset())
}

func TestSkewClock_NilSource(t *testing.T) {
	c := NewSkewClock(nil)
	assert.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, time.Duration(0), c.Offset())
	assert.WithinDuration(t, time.Now(), c.Now(), time.Second)
}
