// 文件: pkg/vault/fees.go
// 费率表与费用收取
//
// 【设计模式】费率计算抽成 FeeSchedule 接口
// - 静态费率是退化情况 (has_dynamic_fees=false)
// - 动态费率按债务偏离目标配比加税/返点
// - 纯函数输入快照，方便单测
//
// 【动态费率直觉】
// 把债务推向目标配比的操作 → 返点 (rebate)
// 把债务推离目标配比的操作 → 加税 (tax)

package vault

import "log"

// FeeQuote 一次费率计算的输入快照
type FeeQuote struct {
	HasDynamicFees bool
	FeeBasisPoints int64 // 基础费率 (万分比)
	TaxBasisPoints int64 // 摆动幅度 (万分比)

	UsdgAmount       int64 // 该代币当前 USDG 债务
	UsdgDelta        int64 // 本次操作引起的债务变化量 (非负)
	TargetUsdgAmount int64 // 目标债务 (weight 配比)
	Increment        bool  // 债务是增加还是减少
}

// FeeSchedule 费率表接口
type FeeSchedule interface {
	BasisPoints(q FeeQuote) (int64, error)
}

// 确保实现了接口
var _ FeeSchedule = (*StandardFeeSchedule)(nil)

// StandardFeeSchedule 标准费率表 (静态 + 动态两种模式)
type StandardFeeSchedule struct{}

// BasisPoints 计算实际费率
//
// 【核心公式】偏离度 = |债务 - 目标|
// - 操作后偏离变小: rebate = tax × 操作前偏离 / target，费率减 rebate (不低于0)
// - 操作后偏离变大: avgDiff = (前偏离+后偏离)/2 (封顶 target)，
//   费率加 tax × avgDiff / target
func (StandardFeeSchedule) BasisPoints(q FeeQuote) (int64, error) {
	if !q.HasDynamicFees {
		return q.FeeBasisPoints, nil
	}

	initial := q.UsdgAmount
	var next int64
	if q.Increment {
		n, err := addChecked(initial, q.UsdgDelta)
		if err != nil {
			return 0, err
		}
		next = n
	} else {
		next = subToZero(initial, q.UsdgDelta)
	}

	target := q.TargetUsdgAmount
	if target == 0 {
		return q.FeeBasisPoints, nil
	}

	initialDiff := abs(initial - target)
	nextDiff := abs(next - target)

	// 向目标靠拢: 返点
	if nextDiff < initialDiff {
		rebate, err := mulDiv(q.TaxBasisPoints, initialDiff, target)
		if err != nil {
			return 0, err
		}
		if rebate > q.FeeBasisPoints {
			return 0, nil
		}
		return q.FeeBasisPoints - rebate, nil
	}

	// 偏离目标: 加税
	avgDiff := (initialDiff + nextDiff) / 2
	if avgDiff > target {
		avgDiff = target
	}
	tax, err := mulDiv(q.TaxBasisPoints, avgDiff, target)
	if err != nil {
		return 0, err
	}
	return q.FeeBasisPoints + tax, nil
}

// =============================================================================
// txn 费率助手
// =============================================================================

// targetUsdgAmount 目标债务 = weight × USDG 总量 / 总权重
func (t *txn) targetUsdgAmount(token string) (int64, error) {
	supply, err := t.v.ledger.TotalSupply(t.ctx, t.v.usdgToken)
	if err != nil {
		return 0, err
	}
	if supply == 0 {
		return 0, nil
	}
	cfg, err := t.store.TokenConfig(token)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, nil
	}
	g, err := t.global()
	if err != nil {
		return 0, err
	}
	if g.TotalTokenWeights == 0 {
		return 0, nil
	}
	return mulDiv(cfg.Weight, supply, g.TotalTokenWeights)
}

// feeBasisPoints 单代币单方向的实际费率
func (t *txn) feeBasisPoints(token string, usdgDelta, feeBps, taxBps int64, increment bool) (int64, error) {
	g, err := t.global()
	if err != nil {
		return 0, err
	}
	p, err := t.store.Pool(token)
	if err != nil {
		return 0, err
	}
	target, err := t.targetUsdgAmount(token)
	if err != nil {
		return 0, err
	}
	return t.v.fees.BasisPoints(FeeQuote{
		HasDynamicFees:   g.HasDynamicFees,
		FeeBasisPoints:   feeBps,
		TaxBasisPoints:   taxBps,
		UsdgAmount:       p.UsdgAmount,
		UsdgDelta:        usdgDelta,
		TargetUsdgAmount: target,
		Increment:        increment,
	})
}

// swapFeeBasisPoints 交换费率: 两条腿各算一次，取较高者
// 两腿都是稳定币时用稳定币费率档
func (t *txn) swapFeeBasisPoints(tokenIn, tokenOut string, usdgDelta int64) (int64, error) {
	g, err := t.global()
	if err != nil {
		return 0, err
	}
	cfgIn, err := t.store.TokenConfig(tokenIn)
	if err != nil {
		return 0, err
	}
	cfgOut, err := t.store.TokenConfig(tokenOut)
	if err != nil {
		return 0, err
	}

	isStableSwap := cfgIn != nil && cfgOut != nil && cfgIn.IsStable && cfgOut.IsStable
	feeBps, taxBps := g.SwapFeeBasisPoints, g.TaxBasisPoints
	if isStableSwap {
		feeBps, taxBps = g.StableSwapFeeBasisPoints, g.StableTaxBasisPoints
	}

	bpsIn, err := t.feeBasisPoints(tokenIn, usdgDelta, feeBps, taxBps, true)
	if err != nil {
		return 0, err
	}
	bpsOut, err := t.feeBasisPoints(tokenOut, usdgDelta, feeBps, taxBps, false)
	if err != nil {
		return 0, err
	}
	if bpsIn > bpsOut {
		return bpsIn, nil
	}
	return bpsOut, nil
}

// =============================================================================
// 费用收取
// =============================================================================

// collectSwapFees 从 amount 里扣下交换费，返回税后数量
// 费用进 FeeReserves (费用不属于池子)
func (t *txn) collectSwapFees(token string, amount, feeBps int64) (int64, error) {
	afterFee, err := mulDiv(amount, BasisPointsDivisor-feeBps, BasisPointsDivisor)
	if err != nil {
		return 0, err
	}
	fee := amount - afterFee
	if fee > 0 {
		if err := t.increaseFeeReserves(token, fee); err != nil {
			return 0, err
		}
		log.Printf("[Fees] collect swap fee: token=%s fee=%d bps=%d", token, fee, feeBps)
	}
	return afterFee, nil
}

// positionFee 仓位手续费 (USD)
// 先算税后再做差，和数量侧的取整方向保持一致
func positionFee(sizeDelta, marginFeeBps int64) (int64, error) {
	if sizeDelta == 0 {
		return 0, nil
	}
	afterFee, err := mulDiv(sizeDelta, BasisPointsDivisor-marginFeeBps, BasisPointsDivisor)
	if err != nil {
		return 0, err
	}
	return sizeDelta - afterFee, nil
}

// collectMarginFees 收取保证金费用: 仓位手续费 + 资金费
// 返回 USD 计的总费用; 费用按抵押代币折算进 FeeReserves
func (t *txn) collectMarginFees(collateralToken string, sizeDelta, size, entryFundingRate int64) (int64, error) {
	g, err := t.global()
	if err != nil {
		return 0, err
	}
	feeUsd, err := positionFee(sizeDelta, g.MarginFeeBasisPoints)
	if err != nil {
		return 0, err
	}

	f, err := t.store.Funding(collateralToken)
	if err != nil {
		return 0, err
	}
	fundUsd, err := fundingFee(size, entryFundingRate, f.CumulativeRate)
	if err != nil {
		return 0, err
	}
	feeUsd, err = addChecked(feeUsd, fundUsd)
	if err != nil {
		return 0, err
	}

	if feeUsd > 0 {
		feeTokens, err := t.usdToTokenMin(collateralToken, feeUsd)
		if err != nil {
			return 0, err
		}
		if err := t.increaseFeeReserves(collateralToken, feeTokens); err != nil {
			return 0, err
		}
		log.Printf("[Fees] collect margin fee: token=%s fee_usd=%d funding_usd=%d", collateralToken, feeUsd, fundUsd)
	}
	return feeUsd, nil
}
