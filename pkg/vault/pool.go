// 文件: pkg/vault/pool.go
// 池子账本: pool/reserved/guaranteed/usdg/fee/空头敞口 的增减
//
// 【设计】每个助手都是 读-改-存 三步，改之前做不变量检查。
// 算了不存等于没算 — 所有路径都必须落到 SetPool/SetGlobalShort。
//
// 不变量 (每次变更后都成立):
// - 0 <= ReservedAmount <= PoolAmount
// - PoolAmount <= TokenBalance
// - PoolAmount >= BufferAmount (只在减少池子的入口校验)

package vault

import "fmt"

// =============================================================================
// PoolAmount
// =============================================================================

func (t *txn) increasePoolAmount(token string, amount int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	next, err := addChecked(p.PoolAmount, amount)
	if err != nil {
		return err
	}
	// 池子不能超过实际持有的代币
	if next > p.TokenBalance {
		return fmt.Errorf("%w: %s", ErrPoolOverflow, token)
	}
	p.PoolAmount = next
	return t.store.SetPool(p)
}

func (t *txn) decreasePoolAmount(token string, amount int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	if amount > p.PoolAmount {
		return fmt.Errorf("%w: %s", ErrInsufficientPool, token)
	}
	p.PoolAmount -= amount
	if p.ReservedAmount > p.PoolAmount {
		return fmt.Errorf("%w: %s", ErrMaxReserveExceeded, token)
	}
	return t.store.SetPool(p)
}

// validateBufferAmount 池子不得低于缓冲水位
func (t *txn) validateBufferAmount(token string) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	if p.PoolAmount < p.BufferAmount {
		return fmt.Errorf("%w: %s", ErrBufferBreached, token)
	}
	return nil
}

// =============================================================================
// ReservedAmount
// =============================================================================

func (t *txn) increaseReservedAmount(token string, amount int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	next, err := addChecked(p.ReservedAmount, amount)
	if err != nil {
		return err
	}
	if next > p.PoolAmount {
		return fmt.Errorf("%w: %s", ErrMaxReserveExceeded, token)
	}
	p.ReservedAmount = next
	return t.store.SetPool(p)
}

func (t *txn) decreaseReservedAmount(token string, amount int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	if amount > p.ReservedAmount {
		return fmt.Errorf("%w: insufficient reserve: %s", ErrInvalidAmount, token)
	}
	p.ReservedAmount -= amount
	return t.store.SetPool(p)
}

// =============================================================================
// GuaranteedUsd
// =============================================================================

func (t *txn) increaseGuaranteedUsd(token string, usd int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	next, err := addChecked(p.GuaranteedUsd, usd)
	if err != nil {
		return err
	}
	p.GuaranteedUsd = next
	return t.store.SetPool(p)
}

func (t *txn) decreaseGuaranteedUsd(token string, usd int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	if usd > p.GuaranteedUsd {
		return fmt.Errorf("%w: guaranteed usd underflow: %s", ErrInvalidAmount, token)
	}
	p.GuaranteedUsd -= usd
	return t.store.SetPool(p)
}

// =============================================================================
// UsdgAmount (USDG 债务)
// =============================================================================

func (t *txn) increaseUsdgAmount(token string, amount int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	next, err := addChecked(p.UsdgAmount, amount)
	if err != nil {
		return err
	}
	cfg, err := t.store.TokenConfig(token)
	if err != nil {
		return err
	}
	if cfg != nil && cfg.MaxUsdgAmount > 0 && next > cfg.MaxUsdgAmount {
		return fmt.Errorf("%w: %s", ErrUsdgCapExceeded, token)
	}
	p.UsdgAmount = next
	return t.store.SetPool(p)
}

// decreaseUsdgAmount 债务递减，向下取整的累计误差允许减到贴零
func (t *txn) decreaseUsdgAmount(token string, amount int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	p.UsdgAmount = subToZero(p.UsdgAmount, amount)
	return t.store.SetPool(p)
}

// =============================================================================
// FeeReserves
// =============================================================================

func (t *txn) increaseFeeReserves(token string, amount int64) error {
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	next, err := addChecked(p.FeeReserves, amount)
	if err != nil {
		return err
	}
	p.FeeReserves = next
	return t.store.SetPool(p)
}

// =============================================================================
// 全局空头敞口
// =============================================================================

func (t *txn) increaseGlobalShortSize(indexToken string, usd int64) error {
	s, err := t.store.GlobalShort(indexToken)
	if err != nil {
		return err
	}
	next, err := addChecked(s.Size, usd)
	if err != nil {
		return err
	}
	if s.MaxSize > 0 && next > s.MaxSize {
		return fmt.Errorf("%w: %s", ErrMaxShortsExceeded, indexToken)
	}
	s.Size = next
	return t.store.SetGlobalShort(indexToken, s)
}

func (t *txn) decreaseGlobalShortSize(indexToken string, usd int64) error {
	s, err := t.store.GlobalShort(indexToken)
	if err != nil {
		return err
	}
	s.Size = subToZero(s.Size, usd)
	return t.store.SetGlobalShort(indexToken, s)
}

// =============================================================================
// 代币余额同步 / 出入金
// =============================================================================

// transferIn 通过余额差推算本次调用转入了多少代币
// 调用前用户已把代币转给金库账户 (见 bank.Ledger)，
// 这里把观察到的余额和上次快照的差额认作入金。
func (t *txn) transferIn(token string) (int64, error) {
	balance, err := t.v.ledger.BalanceOf(t.ctx, t.v.holder, token)
	if err != nil {
		return 0, err
	}
	p, err := t.store.Pool(token)
	if err != nil {
		return 0, err
	}
	delta := balance - p.TokenBalance
	if delta < 0 {
		return 0, fmt.Errorf("%w: balance shrank for %s", ErrInvalidAmount, token)
	}
	p.TokenBalance = balance
	if err := t.store.SetPool(p); err != nil {
		return 0, err
	}
	return delta, nil
}

// transferOut 记账扣减余额快照，实际转账在提交后执行
func (t *txn) transferOut(token string, amount int64, receiver string) error {
	if amount == 0 {
		return nil
	}
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	if amount > p.TokenBalance {
		return fmt.Errorf("%w: transfer out exceeds balance: %s", ErrInvalidAmount, token)
	}
	p.TokenBalance -= amount
	if err := t.store.SetPool(p); err != nil {
		return err
	}
	t.transfers = append(t.transfers, pendingTransfer{
		Token: token, To: receiver, Amount: amount,
	})
	return nil
}

// updateTokenBalance 把余额快照对齐到账本实际值 (销毁 USDG 后等场景)
func (t *txn) updateTokenBalance(token string) error {
	balance, err := t.v.ledger.BalanceOf(t.ctx, t.v.holder, token)
	if err != nil {
		return err
	}
	p, err := t.store.Pool(token)
	if err != nil {
		return err
	}
	p.TokenBalance = balance
	return t.store.SetPool(p)
}
