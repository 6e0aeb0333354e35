package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeLocal struct {
	mu        sync.Mutex
	inventory map[string]int
	credit    decimal.Decimal
	money     decimal.Decimal
	shutdown  []string
	connected bool
}

func newFakeLocal(inv map[string]int) *fakeLocal {
	return &fakeLocal{inventory: inv, credit: decimal.Zero, money: decimal.Zero}
}

func (l *fakeLocal) Inventory() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.inventory))
	for k, v := range l.inventory {
		out[k] = v
	}
	return out
}

func (l *fakeLocal) SetInventory(id string, n int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, ok := l.inventory[id]
	if !ok {
		return false, errors.New("unknown channel")
	}
	l.inventory[id] = n
	return old != n, nil
}

func (l *fakeLocal) take(id string) {
	l.mu.Lock()
	l.inventory[id]--
	l.mu.Unlock()
}

func (l *fakeLocal) StatusPayload() []byte { return []byte(`{"status":{}}`) }

func (l *fakeLocal) MoneyCollected() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.money
}

func (l *fakeLocal) AddCredit(amount decimal.Decimal) {
	l.mu.Lock()
	l.credit = l.credit.Add(amount)
	l.mu.Unlock()
}

func (l *fakeLocal) RequestShutdown(reason string) {
	l.mu.Lock()
	l.shutdown = append(l.shutdown, reason)
	l.mu.Unlock()
}

func (l *fakeLocal) SetRemoteConnected(c bool) {
	l.mu.Lock()
	l.connected = c
	l.mu.Unlock()
}

func TestSyncRemoteResupplyOverwritesLocal(t *testing.T) {
	store := NewFakeStore()
	local := newFakeLocal(map[string]int{"a": 0, "b": 3})
	store.Set(KeyInventory("a"), "12")
	s := NewSyncer(store, local, zap.NewNop())

	s.Sync()

	assert.Equal(t, map[string]int{"a": 12, "b": 3}, local.Inventory())
	assert.Equal(t, []string{"3"}, store.PushesFor(KeyInventory("b")))
	assert.Empty(t, store.PushesFor(KeyInventory("a")), "value already matches remote")
	assert.True(t, local.connected)
}

func TestSyncOwnEchoDoesNotRollBackSales(t *testing.T) {
	store := NewFakeStore()
	local := newFakeLocal(map[string]int{"a": 5})
	s := NewSyncer(store, local, zap.NewNop())

	s.Sync()
	require.Equal(t, []string{"5"}, store.PushesFor(KeyInventory("a")))

	local.take("a")
	s.Sync()

	assert.Equal(t, 4, local.Inventory()["a"], "remote 5 is our own echo")
	assert.Equal(t, []string{"5", "4"}, store.PushesFor(KeyInventory("a")))

	store.Set(KeyInventory("a"), "20")
	s.Sync()
	assert.Equal(t, 20, local.Inventory()["a"], "operator resupply wins")
	assert.Equal(t, []string{"5", "4"}, store.PushesFor(KeyInventory("a")), "no echo push")
}

func TestSyncIgnoresInvalidRemoteInventory(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := NewFakeStore()
	local := newFakeLocal(map[string]int{"a": 2})
	store.Set(KeyInventory("a"), "lots")
	NewSyncer(store, local, zap.New(core)).Sync()

	assert.Equal(t, 2, local.Inventory()["a"])
	assert.Equal(t, 1, logs.FilterMessage("ignoring invalid remote inventory").Len())
}

func TestSyncShutdownCommand(t *testing.T) {
	store := NewFakeStore()
	local := newFakeLocal(map[string]int{})
	store.Set(KeyShutdown, "true")
	s := NewSyncer(store, local, zap.NewNop())

	s.Sync()
	assert.Equal(t, []string{"remote"}, local.shutdown)
	v, _ := store.Value(KeyShutdown)
	assert.Empty(t, v, "flag cleared")

	s.Sync()
	assert.Len(t, local.shutdown, 1, "cleared flag is not acted on again")
}

func TestSyncShutdownProceedsWhenClearFails(t *testing.T) {
	store := NewFakeStore()
	store.PushErrs[KeyShutdown] = errors.New("denied")
	local := newFakeLocal(map[string]int{})
	store.Set(KeyShutdown, "1")

	NewSyncer(store, local, zap.NewNop()).Sync()
	assert.Equal(t, []string{"remote"}, local.shutdown)
}

func TestSyncCreditCommand(t *testing.T) {
	store := NewFakeStore()
	local := newFakeLocal(map[string]int{})
	store.Set(KeyCredit, "15")
	s := NewSyncer(store, local, zap.NewNop())

	s.Sync()
	s.Sync()
	assert.True(t, local.credit.Equal(decimal.NewFromInt(15)), "applied once, got %s", local.credit)
}

func TestSyncCreditNotAppliedWhenClearFails(t *testing.T) {
	store := NewFakeStore()
	store.PushErrs[KeyCredit] = errors.New("denied")
	local := newFakeLocal(map[string]int{})
	store.Set(KeyCredit, "15")

	NewSyncer(store, local, zap.NewNop()).Sync()
	assert.True(t, local.credit.IsZero())
}

func TestSyncUnavailableIsNoChange(t *testing.T) {
	store := NewFakeStore()
	store.SetOnline(false)
	store.Set(KeyInventory("a"), "9")
	store.Set(KeyShutdown, "1")
	local := newFakeLocal(map[string]int{"a": 1})

	NewSyncer(store, local, zap.NewNop()).Sync()

	assert.Equal(t, 1, local.Inventory()["a"])
	assert.Empty(t, local.shutdown)
	assert.Empty(t, store.Pushes())
	assert.False(t, local.connected)
}

func TestSyncPushFailureIsSwallowedAndRetried(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := NewFakeStore()
	store.PushErr = errors.New("broker busy")
	local := newFakeLocal(map[string]int{"a": 1})
	local.money = decimal.NewFromInt(30)
	s := NewSyncer(store, local, zap.New(core))

	s.Sync()
	assert.Positive(t, logs.FilterMessage("inventory push failed").Len())

	store.PushErr = nil
	s.Sync()
	assert.Equal(t, []string{"1"}, store.PushesFor(KeyInventory("a")))
	assert.Equal(t, []string{"30"}, store.PushesFor(KeyMoneyCollected))
	assert.Len(t, store.PushesFor(KeyStatus), 1)
}

func TestSyncerRunNotifyAndSales(t *testing.T) {
	store := NewFakeStore()
	local := newFakeLocal(map[string]int{"a": 3})
	s := NewSyncer(store, local, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, tick) }()

	tick <- time.Time{}
	require.Equal(t, []string{"3"}, store.PushesFor(KeyInventory("a")))

	local.take("a")
	for i := 0; i < 5; i++ {
		s.Notify()
	}
	s.PublishSale([]byte(`{"channel":"a"}`))

	assert.Eventually(t, func() bool {
		return len(store.PushesFor(KeyInventory("a"))) == 2 && len(store.Events()) == 1
	}, time.Second, 5*time.Millisecond)

	tick <- time.Time{}
	assert.Equal(t, []string{"3", "2"}, store.PushesFor(KeyInventory("a")), "burst of notifications coalesced")
	assert.Equal(t, KeySales, store.Events()[0].Key)

	cancel()
	require.NoError(t, <-done)
}
