// 文件: pkg/vault/liquidation.go
// 清算判定
//
// 【设计】判定是 (持仓, 盈亏, 费用, 配置) 的纯函数，三态返回:
// - Healthy: 不能清算
// - Liquidatable: 亏损/费用吃穿抵押，必须清算
// - MaxLeverageExceeded: 还有净值但杠杆超限，降杠杆即可 (内部走全额减仓)
//
// 判定顺序即扣减顺序: 先亏损、再保证金费用、再清算费、最后查杠杆。

package vault

// LiquidationState 清算判定结果
type LiquidationState int

const (
	// LiquidationHealthy 健康仓位
	LiquidationHealthy LiquidationState = iota
	// LiquidationLiquidatable 必须清算
	LiquidationLiquidatable
	// LiquidationMaxLeverageExceeded 超杠杆，降杠杆处理
	LiquidationMaxLeverageExceeded
)

// checkLiquidation 纯函数清算判定
// 返回 (判定, 应收保证金费用 USD)
// 费用吃穿抵押时，费用按剩余抵押收 (能收多少收多少)
func checkLiquidation(p *Position, hasProfit bool, delta, marginFeesUsd, liquidationFeeUsd, maxLeverage int64) (LiquidationState, int64, error) {
	// 1. 亏损吃穿抵押
	if !hasProfit && p.Collateral < delta {
		return LiquidationLiquidatable, marginFeesUsd, nil
	}

	remaining := p.Collateral
	if !hasProfit {
		remaining -= delta
	}

	// 2. 费用吃穿剩余抵押
	if remaining < marginFeesUsd {
		return LiquidationLiquidatable, remaining, nil
	}

	// 3. 剩余抵押付不起清算费
	if remaining < marginFeesUsd+liquidationFeeUsd {
		return LiquidationLiquidatable, marginFeesUsd, nil
	}

	// 4. 杠杆超限: remaining × maxLeverage < size × 10000
	lhs, err := mulDiv(remaining, maxLeverage, BasisPointsDivisor)
	if err != nil {
		return LiquidationHealthy, 0, err
	}
	if lhs < p.Size {
		return LiquidationMaxLeverageExceeded, marginFeesUsd, nil
	}

	return LiquidationHealthy, marginFeesUsd, nil
}

// liquidationState 读取现场后调用纯函数判定
func (t *txn) liquidationState(key PositionKey, p *Position) (LiquidationState, int64, error) {
	hasProfit, delta, err := t.delta(key.IndexToken, p.Size, p.AveragePrice, key.IsLong, p.LastIncreasedTime)
	if err != nil {
		return LiquidationHealthy, 0, err
	}

	g, err := t.global()
	if err != nil {
		return LiquidationHealthy, 0, err
	}
	f, err := t.store.Funding(key.CollateralToken)
	if err != nil {
		return LiquidationHealthy, 0, err
	}
	fundUsd, err := fundingFee(p.Size, p.EntryFundingRate, f.CumulativeRate)
	if err != nil {
		return LiquidationHealthy, 0, err
	}
	posFeeUsd, err := positionFee(p.Size, g.MarginFeeBasisPoints)
	if err != nil {
		return LiquidationHealthy, 0, err
	}
	marginFees, err := addChecked(fundUsd, posFeeUsd)
	if err != nil {
		return LiquidationHealthy, 0, err
	}

	return checkLiquidation(p, hasProfit, delta, marginFees, g.LiquidationFeeUsd, g.MaxLeverage)
}
