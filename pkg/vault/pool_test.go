// 文件: pkg/vault/pool_test.go
// 池子账本不变量测试

package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAmountBoundedByTokenBalance(t *testing.T) {
	v, _, _ := newTestVault(t)
	tx := newTestTxn(t, v, testNow)
	require.NoError(t, tx.store.SetPool(&PoolState{Token: "BTC", TokenBalance: 100}))

	require.NoError(t, tx.increasePoolAmount("BTC", 100))
	// 超出实际持有
	err := tx.increasePoolAmount("BTC", 1)
	assert.ErrorIs(t, err, ErrPoolOverflow)
}

func TestDecreasePoolKeepsReserveCovered(t *testing.T) {
	v, _, _ := newTestVault(t)
	tx := newTestTxn(t, v, testNow)
	require.NoError(t, tx.store.SetPool(&PoolState{
		Token: "BTC", TokenBalance: 100, PoolAmount: 100, ReservedAmount: 60,
	}))

	require.NoError(t, tx.decreasePoolAmount("BTC", 40))

	// 再减会让 pool < reserved
	err := tx.decreasePoolAmount("BTC", 1)
	assert.ErrorIs(t, err, ErrMaxReserveExceeded)

	// 减超池子本身
	err = tx.decreasePoolAmount("BTC", 1000)
	assert.ErrorIs(t, err, ErrInsufficientPool)
}

func TestReservedAmountBoundedByPool(t *testing.T) {
	v, _, _ := newTestVault(t)
	tx := newTestTxn(t, v, testNow)
	require.NoError(t, tx.store.SetPool(&PoolState{
		Token: "BTC", TokenBalance: 100, PoolAmount: 100,
	}))

	require.NoError(t, tx.increaseReservedAmount("BTC", 100))
	err := tx.increaseReservedAmount("BTC", 1)
	assert.ErrorIs(t, err, ErrMaxReserveExceeded)

	require.NoError(t, tx.decreaseReservedAmount("BTC", 100))
	err = tx.decreaseReservedAmount("BTC", 1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBufferAmountValidation(t *testing.T) {
	v, _, _ := newTestVault(t)
	tx := newTestTxn(t, v, testNow)
	require.NoError(t, tx.store.SetPool(&PoolState{
		Token: "BTC", TokenBalance: 100, PoolAmount: 50, BufferAmount: 50,
	}))
	require.NoError(t, tx.validateBufferAmount("BTC"))

	require.NoError(t, tx.decreasePoolAmount("BTC", 1))
	err := tx.validateBufferAmount("BTC")
	assert.ErrorIs(t, err, ErrBufferBreached)
}

func TestUsdgAmountCap(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.SetTokenConfig(ctx, govCall(), TokenConfig{
		Token: "BTC", Decimals: 8, Weight: 10000, IsShortable: true, MaxUsdgAmount: 1000,
	}))

	tx := newTestTxn(t, v, testNow)
	require.NoError(t, tx.increaseUsdgAmount("BTC", 1000))
	err := tx.increaseUsdgAmount("BTC", 1)
	assert.ErrorIs(t, err, ErrUsdgCapExceeded)

	// 债务递减贴零不报错
	require.NoError(t, tx.decreaseUsdgAmount("BTC", 5000))
	p, _ := tx.store.Pool("BTC")
	assert.Equal(t, int64(0), p.UsdgAmount)
}

func TestGuaranteedUsdUnderflowRejected(t *testing.T) {
	v, _, _ := newTestVault(t)
	tx := newTestTxn(t, v, testNow)

	require.NoError(t, tx.increaseGuaranteedUsd("BTC", 100*oneUsd))
	err := tx.decreaseGuaranteedUsd("BTC", 101*oneUsd)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGlobalShortSizeCapAndFloor(t *testing.T) {
	v, _, _ := newTestVault(t)
	tx := newTestTxn(t, v, testNow)
	require.NoError(t, tx.store.SetGlobalShort("BTC", &GlobalShortState{MaxSize: 1000}))

	require.NoError(t, tx.increaseGlobalShortSize("BTC", 1000))
	err := tx.increaseGlobalShortSize("BTC", 1)
	assert.ErrorIs(t, err, ErrMaxShortsExceeded)

	// 减超存量时贴零 (取整误差)
	require.NoError(t, tx.decreaseGlobalShortSize("BTC", 5000))
	s, _ := tx.store.GlobalShort("BTC")
	assert.Equal(t, int64(0), s.Size)
}

func TestTransferInObservesBalanceDelta(t *testing.T) {
	v, _, ledger := newTestVault(t)
	tx := newTestTxn(t, v, testNow)

	ledger.SetBalance(v.Holder(), "BTC", 500)
	got, err := tx.transferIn("BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got)

	// 没有新入金时差额为 0
	got, err = tx.transferIn("BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	p, _ := tx.store.Pool("BTC")
	assert.Equal(t, int64(500), p.TokenBalance)
}

func TestTransferOutStagesBalanceAndPending(t *testing.T) {
	v, _, ledger := newTestVault(t)
	tx := newTestTxn(t, v, testNow)

	ledger.SetBalance(v.Holder(), "BTC", 500)
	_, err := tx.transferIn("BTC")
	require.NoError(t, err)

	require.NoError(t, tx.transferOut("BTC", 200, "alice"))
	p, _ := tx.store.Pool("BTC")
	assert.Equal(t, int64(300), p.TokenBalance)
	require.Len(t, tx.transfers, 1)
	assert.Equal(t, "alice", tx.transfers[0].To)

	// 超过余额快照
	err = tx.transferOut("BTC", 301, "alice")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// 0 金额不产生转账
	require.NoError(t, tx.transferOut("BTC", 0, "alice"))
	assert.Len(t, tx.transfers, 1)
}
