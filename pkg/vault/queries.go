// 文件: pkg/vault/queries.go
// 只读查询
//
// 查询和变更走同一条读路径 (view)，保证口径一致; 从不提交。

package vault

import "context"

// PoolInfo 池子状态快照
type PoolInfo struct {
	Token          string
	PoolAmount     int64
	ReservedAmount int64
	BufferAmount   int64
	FeeReserves    int64
	GuaranteedUsd  int64
	UsdgAmount     int64
	TokenBalance   int64
}

// GetPool 池子状态
func (v *Vault) GetPool(ctx context.Context, token string) (*PoolInfo, error) {
	var info *PoolInfo
	err := v.view(ctx, 0, func(t *txn) error {
		p, err := t.store.Pool(token)
		if err != nil {
			return err
		}
		info = &PoolInfo{
			Token:          p.Token,
			PoolAmount:     p.PoolAmount,
			ReservedAmount: p.ReservedAmount,
			BufferAmount:   p.BufferAmount,
			FeeReserves:    p.FeeReserves,
			GuaranteedUsd:  p.GuaranteedUsd,
			UsdgAmount:     p.UsdgAmount,
			TokenBalance:   p.TokenBalance,
		}
		return nil
	})
	return info, err
}

// GetPosition 持仓快照，不存在返回 nil
func (v *Vault) GetPosition(ctx context.Context, key PositionKey) (*Position, error) {
	var pos *Position
	err := v.view(ctx, 0, func(t *txn) error {
		enc, err := key.Encode()
		if err != nil {
			return err
		}
		pos, err = t.store.Position(enc)
		return err
	})
	return pos, err
}

// GetPositionLeverage 持仓杠杆 (万分比)
func (v *Vault) GetPositionLeverage(ctx context.Context, key PositionKey) (int64, error) {
	var leverage int64
	err := v.view(ctx, 0, func(t *txn) error {
		enc, err := key.Encode()
		if err != nil {
			return err
		}
		p, err := t.store.Position(enc)
		if err != nil {
			return err
		}
		if p == nil || p.Collateral == 0 {
			return ErrPositionNotFound
		}
		leverage, err = mulDiv(p.Size, BasisPointsDivisor, p.Collateral)
		return err
	})
	return leverage, err
}

// GetPositionDelta 持仓浮动盈亏 (是否盈利, USD)
func (v *Vault) GetPositionDelta(ctx context.Context, now int64, key PositionKey) (bool, int64, error) {
	var hasProfit bool
	var delta int64
	err := v.view(ctx, now, func(t *txn) error {
		enc, err := key.Encode()
		if err != nil {
			return err
		}
		p, err := t.store.Position(enc)
		if err != nil {
			return err
		}
		if p == nil || p.Size == 0 {
			return ErrPositionNotFound
		}
		hasProfit, delta, err = t.delta(key.IndexToken, p.Size, p.AveragePrice, key.IsLong, p.LastIncreasedTime)
		return err
	})
	return hasProfit, delta, err
}

// GetGlobalShortDelta 全局空头敞口的浮动盈亏
func (v *Vault) GetGlobalShortDelta(ctx context.Context, indexToken string) (bool, int64, error) {
	var hasProfit bool
	var delta int64
	err := v.view(ctx, 0, func(t *txn) error {
		var err error
		hasProfit, delta, err = t.globalShortDelta(indexToken)
		return err
	})
	return hasProfit, delta, err
}

// GetUtilisation 资金利用率 (FundingRatePrecision 精度)
func (v *Vault) GetUtilisation(ctx context.Context, token string) (int64, error) {
	var u int64
	err := v.view(ctx, 0, func(t *txn) error {
		p, err := t.store.Pool(token)
		if err != nil {
			return err
		}
		if p.PoolAmount == 0 {
			return nil
		}
		u, err = mulDiv(p.ReservedAmount, FundingRatePrecision, p.PoolAmount)
		return err
	})
	return u, err
}

// GetRedemptionCollateral 可赎回抵押 (代币数量)
// 稳定币: 整个池子; 其余: guaranteed 折算 + 池子 - 预留
func (v *Vault) GetRedemptionCollateral(ctx context.Context, token string) (int64, error) {
	var amount int64
	err := v.view(ctx, 0, func(t *txn) error {
		cfg, err := t.validateWhitelisted(token)
		if err != nil {
			return err
		}
		p, err := t.store.Pool(token)
		if err != nil {
			return err
		}
		if cfg.IsStable {
			amount = p.PoolAmount
			return nil
		}
		guaranteed, err := t.usdToTokenMin(token, p.GuaranteedUsd)
		if err != nil {
			return err
		}
		amount = guaranteed + p.PoolAmount - p.ReservedAmount
		return nil
	})
	return amount, err
}

// GetRedemptionCollateralUsd 可赎回抵押 (USD)
func (v *Vault) GetRedemptionCollateralUsd(ctx context.Context, token string) (int64, error) {
	var usd int64
	err := v.view(ctx, 0, func(t *txn) error {
		cfg, err := t.validateWhitelisted(token)
		if err != nil {
			return err
		}
		p, err := t.store.Pool(token)
		if err != nil {
			return err
		}
		var collateral int64
		if cfg.IsStable {
			collateral = p.PoolAmount
		} else {
			guaranteed, err := t.usdToTokenMin(token, p.GuaranteedUsd)
			if err != nil {
				return err
			}
			collateral = guaranteed + p.PoolAmount - p.ReservedAmount
		}
		usd, err = t.tokenToUsdMin(token, collateral)
		return err
	})
	return usd, err
}

// GetTargetUsdgAmount 目标 USDG 债务 (按权重配比)
func (v *Vault) GetTargetUsdgAmount(ctx context.Context, token string) (int64, error) {
	var target int64
	err := v.view(ctx, 0, func(t *txn) error {
		var err error
		target, err = t.targetUsdgAmount(token)
		return err
	})
	return target, err
}

// GetCumulativeFundingRate 累计资金费率
func (v *Vault) GetCumulativeFundingRate(ctx context.Context, token string) (int64, error) {
	var rate int64
	err := v.view(ctx, 0, func(t *txn) error {
		f, err := t.store.Funding(token)
		if err != nil {
			return err
		}
		rate = f.CumulativeRate
		return nil
	})
	return rate, err
}

// GetGlobalShort 全局空头敞口
func (v *Vault) GetGlobalShort(ctx context.Context, indexToken string) (*GlobalShortState, error) {
	var s *GlobalShortState
	err := v.view(ctx, 0, func(t *txn) error {
		var err error
		s, err = t.store.GlobalShort(indexToken)
		return err
	})
	return s, err
}

// GetGlobal 全局配置快照
func (v *Vault) GetGlobal(ctx context.Context) (*GlobalState, error) {
	var g *GlobalState
	err := v.view(ctx, 0, func(t *txn) error {
		var err error
		g, err = t.global()
		return err
	})
	return g, err
}
