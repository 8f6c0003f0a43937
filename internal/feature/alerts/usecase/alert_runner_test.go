package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_etl/internal/feature/alerts/domain/entity"
	candle "market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
)

// memAlertStates is an in-memory StateStore.
type memAlertStates struct {
	mu   sync.Mutex
	data map[string]entity.State
}

func newMemAlertStates() *memAlertStates { return &memAlertStates{data: map[string]entity.State{}} }

func (m *memAlertStates) Get(ctx context.Context, key string) (entity.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.data[key]
	return st, ok, nil
}

func (m *memAlertStates) Put(ctx context.Context, key string, st entity.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = st
	return nil
}

// mockNotifier is a mock implementation of the Notifier interface.
type mockNotifier struct {
	SendFunc func(ctx context.Context, n entity.Notification) error
	Sent     []entity.Notification
}

func (m *mockNotifier) Send(ctx context.Context, n entity.Notification) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, n); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, n)
	return nil
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

// crossRows ends with an upward moving average cross on the last candle.
func crossRows() []candle.Row { return closeRows(10, 10, 10, 9, 8, 12) }

func throttledRule(seconds int) entity.Rule {
	r := maRule()
	r.ThrottleSeconds = seconds
	r.Channel = entity.ChannelTelegram
	r.Destination = "12345"
	return r
}

func TestAlertRunner_Throttle(t *testing.T) {
	ctx := context.Background()
	T := time.Date(2024, 1, 5, 4, 0, 0, 0, time.UTC)
	clock := &stepClock{now: T}
	notifier := &mockNotifier{}
	states := newMemAlertStates()

	ar := NewAlertRunner([]entity.Rule{throttledRule(60)}, states, notifier, clock)

	// T: 通知される
	require.NoError(t, ar.Evaluate(ctx, "X", "1h", crossRows()))
	require.Len(t, notifier.Sent, 1)
	assert.Equal(t, "12345", notifier.Sent[0].Destination)
	assert.Contains(t, notifier.Sent[0].Text, "X 1h LONG")
	assert.True(t, T.Equal(states.data["X,1h,ma"].LastDispatchedAt))

	// T+1s: 抑制
	clock.now = T.Add(time.Second)
	require.NoError(t, ar.Evaluate(ctx, "X", "1h", crossRows()))
	assert.Len(t, notifier.Sent, 1)

	// T+61s: 再び通知される
	clock.now = T.Add(61 * time.Second)
	require.NoError(t, ar.Evaluate(ctx, "X", "1h", crossRows()))
	assert.Len(t, notifier.Sent, 2)
	assert.True(t, T.Add(61*time.Second).Equal(states.data["X,1h,ma"].LastDispatchedAt))
}

func TestAlertRunner_DispatchFailureDoesNotAdvanceState(t *testing.T) {
	ctx := context.Background()
	T := time.Date(2024, 1, 5, 4, 0, 0, 0, time.UTC)
	clock := &stepClock{now: T}
	fail := true
	notifier := &mockNotifier{
		SendFunc: func(ctx context.Context, n entity.Notification) error {
			if fail {
				return errors.New("telegram unreachable")
			}
			return nil
		},
	}
	states := newMemAlertStates()
	ar := NewAlertRunner([]entity.Rule{throttledRule(60)}, states, notifier, clock)

	err := ar.Evaluate(ctx, "X", "1h", crossRows())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAlertDispatch))
	assert.Empty(t, states.data)

	// 次の評価では throttle に関係なく再送される
	fail = false
	clock.now = T.Add(time.Second)
	require.NoError(t, ar.Evaluate(ctx, "X", "1h", crossRows()))
	assert.Len(t, notifier.Sent, 1)
	assert.True(t, T.Add(time.Second).Equal(states.data["X,1h,ma"].LastDispatchedAt))
}

func TestAlertRunner_SuppressRepeat(t *testing.T) {
	ctx := context.Background()
	T := time.Date(2024, 1, 5, 4, 0, 0, 0, time.UTC)
	clock := &stepClock{now: T}
	notifier := &mockNotifier{}
	rule := throttledRule(0)
	rule.SuppressRepeat = true

	ar := NewAlertRunner([]entity.Rule{rule}, newMemAlertStates(), notifier, clock)

	require.NoError(t, ar.Evaluate(ctx, "X", "1h", crossRows()))
	clock.now = T.Add(time.Hour)
	require.NoError(t, ar.Evaluate(ctx, "X", "1h", crossRows()))
	assert.Len(t, notifier.Sent, 1, "same candle event is sent once")

	// 別の足のイベントは送られる
	next := crossRows()
	for i := range next {
		next[i].OpenTime += 3_600_000
	}
	require.NoError(t, ar.Evaluate(ctx, "X", "1h", next))
	assert.Len(t, notifier.Sent, 2)
}

func TestAlertRunner_SkipsOtherRulesAndNoSignal(t *testing.T) {
	ctx := context.Background()
	notifier := &mockNotifier{}
	other := throttledRule(0)
	other.Ticker = "Y"
	disabled := throttledRule(0)
	disabled.Name = "off"
	disabled.Enabled = false

	ar := NewAlertRunner([]entity.Rule{other, disabled, throttledRule(0)}, newMemAlertStates(), notifier, &stepClock{now: time.Now()})

	// シグナルなし
	require.NoError(t, ar.Evaluate(ctx, "X", "1h", closeRows(10, 10, 10, 9, 8)))
	assert.Empty(t, notifier.Sent)

	require.NoError(t, ar.Evaluate(ctx, "X", "1h", crossRows()))
	assert.Len(t, notifier.Sent, 1)
}
