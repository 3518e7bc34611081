// 文件: pkg/vault/funding.go
// 资金费引擎
//
// 【核心公式】
//   区间费率 = factor × reserved × intervals / pool   (FundingRatePrecision 精度)
//   资金费   = size × (累计费率 - 开仓费率) / FundingRatePrecision
//
// 【设计】只记累计费率 (cumulative rate)，持仓记开仓时的快照，
// 收费时做差。这样不需要逐仓轮询结算，O(1) 完成计费。
// LastFundingTime 对齐到 FundingInterval 边界，保证同一区间只计一次。

package vault

// updateCumulativeFundingRate 把 token 的累计资金费率推进到当前时间
//
// 三种情况:
// 1. 首次触碰: 只落边界时间，不计费
// 2. 同一区间内再次调用: 不动
// 3. 跨区间: 按整区间数累加费率，时间推到本区间边界
func (t *txn) updateCumulativeFundingRate(token string) error {
	g, err := t.global()
	if err != nil {
		return err
	}
	f, err := t.store.Funding(token)
	if err != nil {
		return err
	}

	interval := g.FundingInterval
	now := t.call.Now

	if f.LastFundingTime == 0 {
		f.LastFundingTime = now / interval * interval
		return t.store.SetFunding(token, f)
	}
	if f.LastFundingTime+interval > now {
		return nil
	}

	rate, err := t.nextFundingRate(token, f.LastFundingTime)
	if err != nil {
		return err
	}
	f.CumulativeRate, err = addChecked(f.CumulativeRate, rate)
	if err != nil {
		return err
	}
	f.LastFundingTime = now / interval * interval
	return t.store.SetFunding(token, f)
}

// nextFundingRate 自上次结算以来的整区间费率
func (t *txn) nextFundingRate(token string, lastFundingTime int64) (int64, error) {
	g, err := t.global()
	if err != nil {
		return 0, err
	}
	intervals := (t.call.Now - lastFundingTime) / g.FundingInterval
	if intervals <= 0 {
		return 0, nil
	}

	p, err := t.store.Pool(token)
	if err != nil {
		return 0, err
	}
	if p.PoolAmount == 0 {
		return 0, nil
	}

	factor := g.FundingRateFactor
	cfg, err := t.store.TokenConfig(token)
	if err != nil {
		return 0, err
	}
	if cfg != nil && cfg.IsStable {
		factor = g.StableFundingRateFactor
	}

	rate, err := mulDiv(factor, p.ReservedAmount, p.PoolAmount)
	if err != nil {
		return 0, err
	}
	return rate * intervals, nil
}

// fundingFee 持仓自开仓以来应付的资金费 (USD)
func fundingFee(size, entryFundingRate, cumulativeFundingRate int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}
	delta := cumulativeFundingRate - entryFundingRate
	if delta <= 0 {
		return 0, nil
	}
	return mulDiv(size, delta, FundingRatePrecision)
}
