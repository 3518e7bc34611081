// 文件: pkg/vault/liquidation_test.go
// 清算判定与清算流程测试

package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 纯函数判定
// =============================================================================

func TestCheckLiquidationStates(t *testing.T) {
	pos := &Position{Size: 100_000 * oneUsd, Collateral: 10_000 * oneUsd}
	maxLeverage := int64(50 * BasisPointsDivisor)
	liqFee := 5 * oneUsd

	tests := []struct {
		name      string
		hasProfit bool
		delta     int64
		fees      int64
		wantState LiquidationState
		wantFees  int64
	}{
		{"健康仓位", false, 1_000 * oneUsd, 100 * oneUsd, LiquidationHealthy, 100 * oneUsd},
		{"盈利仓位", true, 50_000 * oneUsd, 100 * oneUsd, LiquidationHealthy, 100 * oneUsd},
		{"亏损吃穿抵押", false, 10_001 * oneUsd, 100 * oneUsd, LiquidationLiquidatable, 100 * oneUsd},
		{"费用吃穿剩余抵押", false, 9_950 * oneUsd, 100 * oneUsd, LiquidationLiquidatable, 50 * oneUsd},
		{"付不起清算费", false, 9_897 * oneUsd, 100 * oneUsd, LiquidationLiquidatable, 100 * oneUsd},
		{"超杠杆但有净值", false, 8_500 * oneUsd, 100 * oneUsd, LiquidationMaxLeverageExceeded, 100 * oneUsd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, fees, err := checkLiquidation(pos, tt.hasProfit, tt.delta, tt.fees, liqFee, maxLeverage)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantFees, fees)
		})
	}
}

// =============================================================================
// 清算流程
// =============================================================================

func TestLiquidateHealthyPositionRejected(t *testing.T) {
	v, _, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 100_000*oneUsd, true))

	err := v.LiquidatePosition(ctx, userCall("keeper"),
		"alice", "BTC", "BTC", true, "keeper")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	pos, _ := v.GetPosition(ctx, PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true})
	assert.NotNil(t, pos)
}

func TestLiquidateUnderwaterLong(t *testing.T) {
	v, po, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	// 10x 多头: 抵押 25,000 USD，名义 250,000
	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc/2)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 250_000*oneUsd, true))

	// 跌 12%: 亏损 30,000 > 抵押
	po.SetPrice("BTC", 44_000*oneUsd)
	require.NoError(t, v.LiquidatePosition(ctx, userCall("keeper"),
		"alice", "BTC", "BTC", true, "keeper"))

	pos, _ := v.GetPosition(ctx, PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true})
	assert.Nil(t, pos)

	pool, _ := v.GetPool(ctx, "BTC")
	assert.Equal(t, int64(0), pool.ReservedAmount)
	assert.Equal(t, int64(0), pool.GuaranteedUsd)

	// keeper 收到清算费 (5 USD 折 BTC)
	bal, _ := ledger.BalanceOf(ctx, "keeper", "BTC")
	expected, _ := mulDiv(5*oneUsd, oneBtc, 44_000*oneUsd)
	assert.Equal(t, expected, bal)
}

func TestLiquidateShortSeizesCollateralToPool(t *testing.T) {
	v, po, ledger := newTestVault(t)
	ctx := context.Background()
	addUsdtLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "USDT", 100_000*oneUsdt)
	depositToVault(t, ledger, v, "alice", "USDT", 10_000*oneUsdt)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "USDT", "BTC", 100_000*oneUsd, false))

	poolBefore, _ := v.GetPool(ctx, "USDT")

	// 涨 11%: 亏损 11,000 > 抵押 9,900
	po.SetPrice("BTC", 55_500*oneUsd)
	require.NoError(t, v.LiquidatePosition(ctx, userCall("keeper"),
		"alice", "USDT", "BTC", false, "keeper"))

	pos, _ := v.GetPosition(ctx, PositionKey{Account: "alice", CollateralToken: "USDT", IndexToken: "BTC", IsLong: false})
	assert.Nil(t, pos)

	short, _ := v.GetGlobalShort(ctx, "BTC")
	assert.Equal(t, int64(0), short.Size)

	// 抵押扣除保证金费后剩余归池子，清算费再从池子付出
	pool, _ := v.GetPool(ctx, "USDT")
	assert.Greater(t, pool.PoolAmount, poolBefore.PoolAmount)
}

func TestLiquidateMaxLeverageExceededDecreasesInstead(t *testing.T) {
	v, po, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	// 40x: 抵押 6,250 USD，名义 250,000
	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc/8)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 250_000*oneUsd, true))

	// 小跌: 亏 5,000，剩 ~1,000 净值 → 超 50x 但没穿仓
	po.SetPrice("BTC", 49_000*oneUsd)
	require.NoError(t, v.LiquidatePosition(ctx, userCall("keeper"),
		"alice", "BTC", "BTC", true, "keeper"))

	// 仓位被全额减掉，余值退回 alice 而不是没收
	pos, _ := v.GetPosition(ctx, PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true})
	assert.Nil(t, pos)
	bal, _ := ledger.BalanceOf(ctx, "alice", "BTC")
	assert.Greater(t, bal, 10*oneBtc-oneBtc/8) // 拿回了部分
	// keeper 没有收清算费
	keeperBal, _ := ledger.BalanceOf(ctx, "keeper", "BTC")
	assert.Equal(t, int64(0), keeperBal)
}

func TestPrivateLiquidationMode(t *testing.T) {
	v, po, ledger := newTestVault(t)
	ctx := context.Background()
	addBtcLiquidity(t, v, ledger)

	ledger.SetBalance("alice", "BTC", 10*oneBtc)
	depositToVault(t, ledger, v, "alice", "BTC", oneBtc/2)
	require.NoError(t, v.IncreasePosition(ctx, userCall("alice"),
		"alice", "BTC", "BTC", 250_000*oneUsd, true))
	po.SetPrice("BTC", 44_000*oneUsd)

	require.NoError(t, v.SetPrivateLiquidationMode(ctx, govCall(), true))

	// 非清算人被拒，状态不变
	err := v.LiquidatePosition(ctx, userCall("rando"),
		"alice", "BTC", "BTC", true, "rando")
	assert.ErrorIs(t, err, ErrUnauthorized)
	pos, _ := v.GetPosition(ctx, PositionKey{Account: "alice", CollateralToken: "BTC", IndexToken: "BTC", IsLong: true})
	assert.NotNil(t, pos)

	// 授权清算人可以
	require.NoError(t, v.SetLiquidator(ctx, govCall(), "keeper", true))
	require.NoError(t, v.LiquidatePosition(ctx, userCall("keeper"),
		"alice", "BTC", "BTC", true, "keeper"))
}
