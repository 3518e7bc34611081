// 文件: pkg/bank/ledger_test.go

package bank

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink 收集发出的事件 (代替 NATS)
type recordingSink struct {
	mu     sync.Mutex
	events []*TransferEvent
}

func (s *recordingSink) Publish(_ string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, data.(*TransferEvent))
	return nil
}

func TestTransfer(t *testing.T) {
	sink := &recordingSink{}
	l := NewMemoryLedger(sink)
	ctx := context.Background()

	l.SetBalance("alice", "BTC", 100)
	require.NoError(t, l.Transfer(ctx, "BTC", "alice", "bob", 30))

	a, _ := l.BalanceOf(ctx, "alice", "BTC")
	b, _ := l.BalanceOf(ctx, "bob", "BTC")
	assert.Equal(t, int64(70), a)
	assert.Equal(t, int64(30), b)

	// 事件带余额快照和幂等 ID
	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, KindTransfer, e.Kind)
	assert.Equal(t, int64(70), e.FromAfter)
	assert.Equal(t, int64(30), e.ToAfter)
	assert.NotZero(t, e.EventID)
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := NewMemoryLedger(nil)
	ctx := context.Background()

	l.SetBalance("alice", "BTC", 10)
	err := l.Transfer(ctx, "BTC", "alice", "bob", 11)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 失败不动账
	a, _ := l.BalanceOf(ctx, "alice", "BTC")
	assert.Equal(t, int64(10), a)
}

func TestTransferValidation(t *testing.T) {
	l := NewMemoryLedger(nil)
	ctx := context.Background()

	assert.ErrorIs(t, l.Transfer(ctx, "BTC", "alice", "bob", 0), ErrInvalidTransfer)
	assert.ErrorIs(t, l.Transfer(ctx, "BTC", "alice", "bob", -1), ErrInvalidTransfer)
	assert.ErrorIs(t, l.Transfer(ctx, "BTC", "", "bob", 1), ErrInvalidTransfer)
	assert.ErrorIs(t, l.Transfer(ctx, "BTC", "alice", "", 1), ErrInvalidTransfer)
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	sink := &recordingSink{}
	l := NewMemoryLedger(sink)
	ctx := context.Background()

	require.NoError(t, l.Mint(ctx, "USDG", "vault", 1000))
	supply, _ := l.TotalSupply(ctx, "USDG")
	assert.Equal(t, int64(1000), supply)

	require.NoError(t, l.Burn(ctx, "USDG", "vault", 400))
	supply, _ = l.TotalSupply(ctx, "USDG")
	assert.Equal(t, int64(600), supply)

	bal, _ := l.BalanceOf(ctx, "vault", "USDG")
	assert.Equal(t, int64(600), bal)

	// 销毁超过持有量
	err := l.Burn(ctx, "USDG", "vault", 601)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.Len(t, sink.events, 2)
	assert.Equal(t, KindMint, sink.events[0].Kind)
	assert.Equal(t, KindBurn, sink.events[1].Kind)
}

func TestBalancesIsolatedByToken(t *testing.T) {
	l := NewMemoryLedger(nil)
	ctx := context.Background()

	l.SetBalance("alice", "BTC", 5)
	l.SetBalance("alice", "USDT", 7)

	btc, _ := l.BalanceOf(ctx, "alice", "BTC")
	usdt, _ := l.BalanceOf(ctx, "alice", "USDT")
	assert.Equal(t, int64(5), btc)
	assert.Equal(t, int64(7), usdt)
}
