// 文件: pkg/vault/ledger_test.go
// 持仓状态机测试: 开仓 / 加仓 / 减仓 / 平仓

package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndCloseLongRoundTrip(t *testing.T) {
	v, _, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 250_000*oneUsd, true))

	key := PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}
	pos, err := v.GetPosition(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, pos)

	// 抵押 50,000 USD − 250 USD 仓位费
	assert.Equal(t, 250_000*oneUsd, pos.Size)
	assert.Equal(t, 49_750*oneUsd, pos.Collateral)
	assert.Equal(t, btcPx, pos.AveragePrice)
	assert.Equal(t, int64(500_000_000), pos.ReserveAmount) // 5 BTC 预留

	pool, _ := v.GetPool(ctx, "BTC")
	assert.Equal(t, int64(500_000_000), pool.ReservedAmount)
	// guaranteed = (250,000 + 250) − 50,000
	assert.Equal(t, 200_250*oneUsd, pool.GuaranteedUsd)
	// 997M + 抵押 1 BTC − 手续费 0.000005 BTC×100... 5e5 sats
	assert.Equal(t, int64(997_000_000+100_000_000-500_000), pool.PoolAmount)

	leverage, err := v.GetPositionLeverage(ctx, key)
	require.NoError(t, err)
	assert.InDelta(t, 50251, leverage, 2) // ≈5.03x (费后)

	// 同价全平: 池子回到入场前，费用进 FeeReserves
	out, err := v.DecreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 0, 250_000*oneUsd, true, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(99_000_000), out) // 1 BTC − 500 USD 费

	pos, err = v.GetPosition(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, pos) // 记录已删除

	pool, _ = v.GetPool(ctx, "BTC")
	assert.Equal(t, int64(997_000_000), pool.PoolAmount)
	assert.Equal(t, int64(0), pool.ReservedAmount)
	assert.Equal(t, int64(0), pool.GuaranteedUsd)
	assert.Equal(t, int64(3_000_000+500_000+500_000), pool.FeeReserves)

	bal, _ := ledger.BalanceOf(ctx, "alice", "BTC")
	assert.Equal(t, 10*oneBtc-oneBtc+99_000_000, bal)
}

func TestPartialDecreasePersistsEverything(t *testing.T) {
	v, _, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 250_000*oneUsd, true))

	key := PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}
	before, _ := v.GetPosition(ctx, key)
	poolBefore, _ := v.GetPool(ctx, "BTC")

	// 减 40%
	_, err := v.DecreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 0, 100_000*oneUsd, true, "alice")
	require.NoError(t, err)

	// 每个字段都真的变了并落了盘
	after, _ := v.GetPosition(ctx, key)
	require.NotNil(t, after)
	assert.Equal(t, 150_000*oneUsd, after.Size)
	assert.Equal(t, before.ReserveAmount*3/5, after.ReserveAmount)
	assert.Equal(t, before.Collateral, after.Collateral) // 没取抵押

	poolAfter, _ := v.GetPool(ctx, "BTC")
	assert.Equal(t, poolBefore.ReservedAmount*3/5, poolAfter.ReservedAmount)
	// guaranteed −= sizeDelta (抵押不变)
	assert.Equal(t, poolBefore.GuaranteedUsd-100_000*oneUsd, poolAfter.GuaranteedUsd)
}

func TestDecreaseWithCollateralWithdrawal(t *testing.T) {
	v, _, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 100_000*oneUsd, true))

	key := PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}

	// 减仓同时取 10,000 USD 抵押
	out, err := v.DecreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 10_000*oneUsd, 50_000*oneUsd, true, "alice")
	require.NoError(t, err)
	assert.Greater(t, out, int64(0))

	pos, _ := v.GetPosition(ctx, key)
	require.NotNil(t, pos)
	assert.Equal(t, 50_000*oneUsd, pos.Size)
	// 49,900 (开仓费后) − 10,000 取出 − 50 减仓费 (出金够付费，不动抵押)
	assert.Equal(t, 39_900*oneUsd, pos.Collateral)
}

func TestIncreaseExistingPositionAveragesPrice(t *testing.T) {
	v, po, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 100_000*oneUsd, true))

	// 价格翻倍后等量加仓: 新均价 = 100k×200k/150k ≈ 66,666.67
	po.SetPrice("BTC", 2*btcPx)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 100_000*oneUsd, true))

	key := PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true}
	pos, _ := v.GetPosition(ctx, key)
	assert.Equal(t, 200_000*oneUsd, pos.Size)
	expected, _ := mulDiv(2*btcPx, 200_000*oneUsd, 300_000*oneUsd)
	assert.Equal(t, expected, pos.AveragePrice)
}

func TestShortProfitPaysFromPool(t *testing.T) {
	v, po, ledger := newTestVault(t)
	ctx := context.Background()
	addUsdtLiquidity(t, v, ledger)

	// alice 用 10,000 USDT 抵押开 100,000 USD 空头
	ledger.SetBalance("alice", "USDT", 100_000*oneUsdt)
	depositToVault(t, ledger, v, "alice", "USDT", 10_000*oneUsdt)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 100_000*oneUsd, false))

	short, _ := v.GetGlobalShort(ctx, "BTC")
	assert.Equal(t, 100_000*oneUsd, short.Size)
	assert.Equal(t, btcPx, short.AveragePrice)

	// 跌 10%: 空头盈利 = size × Δprice / 均价 = 10,000 USD
	po.SetPrice("BTC", 45_000*oneUsd)
	hasProfit, delta, err := v.GetGlobalShortDelta(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, hasProfit)
	assert.Equal(t, 10_000*oneUsd, delta)

	poolBefore, _ := v.GetPool(ctx, "USDT")
	out, err := v.DecreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 0, 100_000*oneUsd, false, "alice")
	require.NoError(t, err)

	// 抵押 10,000 − 100 开仓费 + 盈利 10,000 − 100 平仓费 = 19,800 USDT
	assert.Equal(t, 19_800*oneUsdt, out)

	// 利润从池子兑付
	poolAfter, _ := v.GetPool(ctx, "USDT")
	assert.Equal(t, poolBefore.PoolAmount-10_000*oneUsdt, poolAfter.PoolAmount)

	short, _ = v.GetGlobalShort(ctx, "BTC")
	assert.Equal(t, int64(0), short.Size)
}

func TestShortLossGoesToPool(t *testing.T) {
	v, po, ledger := newTestVault(t)
	ctx := context.Background()
	addUsdtLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "USDT", 100_000*oneUsdt)
	depositToVault(t, ledger, v, "alice", "USDT", 10_000*oneUsdt)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 100_000*oneUsd, false))

	// 涨 5%: 空头亏 5,000 USD
	po.SetPrice("BTC", 52_500*oneUsd)
	poolBefore, _ := v.GetPool(ctx, "USDT")

	out, err := v.DecreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 0, 100_000*oneUsd, false, "alice")
	require.NoError(t, err)
	// 10,000 − 100 − 5,000 − 100 = 4,800 USDT
	assert.Equal(t, 4_800*oneUsdt, out)

	poolAfter, _ := v.GetPool(ctx, "USDT")
	assert.Equal(t, poolBefore.PoolAmount+5_000*oneUsdt, poolAfter.PoolAmount)
}

func TestIncreasePositionTokenRoleValidation(t *testing.T) {
	v, _, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)
	addUsdtLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "USDT", 100_000*oneUsdt)
	ledger.SetBalance("alice", "BTC", oneBtc)

	// 多头抵押必须等于指数代币
	depositToVault(t, ledger, v, "alice", "USDT", 10_000*oneUsdt)
	err := v.IncreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 100_000*oneUsd, true)
	assert.ErrorIs(t, err, ErrInvalidTokenRole)

	// 空头抵押必须是稳定币
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)
	err = v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 100_000*oneUsd, false)
	assert.ErrorIs(t, err, ErrInvalidTokenRole)

	// 稳定币不能做指数
	err = v.IncreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "USDT", 100_000*oneUsd, false)
	assert.ErrorIs(t, err, ErrInvalidTokenRole)
}

func TestLeverageDisabledBlocksIncrease(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.SetLeverageEnabled(ctx, govCall(), false))
	err := v.IncreasePosition(ctx, userCall("alice"), "alice", "BTC", "BTC", oneUsd, true)
	assert.ErrorIs(t, err, ErrLeverageDisabled)
}

func TestRouterAuthorization(t *testing.T) {
	v, _, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)

	// 未授权路由替 alice 开仓
	err := v.IncreasePosition(ctx, userCall("router-1"),
		"alice", "BTC", "BTC", 100_000*oneUsd, true)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// alice 授权后可以
	require.NoError(t, v.AddRouter(ctx, userCall("alice"), "router-1"))
	require.NoError(t, v.IncreasePosition(ctx, userCall("router-1"),
		"alice", "BTC", "BTC", 100_000*oneUsd, true))

	// 撤销授权后再次失败
	require.NoError(t, v.RemoveRouter(ctx, userCall("alice"), "router-1"))
	_, err = v.DecreasePosition(ctx, userCall("router-1"),
		"alice", "BTC", "BTC", 0, 50_000*oneUsd, true, "alice")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMaxGlobalShortSizeCap(t *testing.T) {
	v, _, ledger := newTestVault(t)
	ctx := context.Background()
	addUsdtLiquidity(t, v, ledger)
	require.NoError(t, v.SetMaxGlobalShortSize(ctx, govCall(), "BTC", 50_000*oneUsd))

	ledger.SetBalance("alice", "USDT", 100_000*oneUsdt)
	depositToVault(t, ledger, v, "alice", "USDT", 10_000*oneUsdt)
	err := v.IncreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 60_000*oneUsd, false)
	assert.ErrorIs(t, err, ErrMaxShortsExceeded)

	// 上限内可以开
	err = v.IncreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 50_000*oneUsd, false)
	require.NoError(t, err)
}

func TestDecreaseNonexistentPosition(t *testing.T) {
	v, _, _ := newTestVault(t)
	_, err := v.DecreasePosition(context.Background(), userCall("alice"),
		"alice", "BTC", "BTC", 0, oneUsd, true, "alice")
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestGasPriceLimit(t *testing.T) {
	v, _, _ := newTestVault(t)
	ctx := context.Background()
	require.NoError(t, v.SetMaxGasPrice(ctx, govCall(), 100))

	call := Call{Sender: "alice", GasPrice: 101, Now: testNow}
	err := v.IncreasePosition(ctx, call, "alice", "BTC", "BTC", oneUsd, true)
	assert.ErrorIs(t, err, ErrMaxGasPriceReached)
}
