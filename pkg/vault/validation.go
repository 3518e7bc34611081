// 文件: pkg/vault/validation.go
// 调用校验助手

package vault

import "fmt"

// global 读全局状态 (未初始化返回 ErrNotInitialized)
func (t *txn) global() (*GlobalState, error) {
	return t.store.Global()
}

// onlyGov 只允许治理账户
func (t *txn) onlyGov() error {
	g, err := t.global()
	if err != nil {
		return err
	}
	if t.call.Sender != g.Gov {
		return fmt.Errorf("%w: gov only", ErrUnauthorized)
	}
	return nil
}

// validateManager manager 模式下只允许 manager 调用
func (t *txn) validateManager() error {
	g, err := t.global()
	if err != nil {
		return err
	}
	if !g.InManagerMode {
		return nil
	}
	ok, err := t.store.IsManager(t.call.Sender)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not a manager", ErrUnauthorized)
	}
	return nil
}

// validateRouter 本人或其授权的路由
func (t *txn) validateRouter(account string) error {
	if t.call.Sender == account {
		return nil
	}
	ok, err := t.store.IsRouter(account, t.call.Sender)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: invalid router", ErrUnauthorized)
	}
	return nil
}

// validateGasPrice gas 价格上限 (0 = 不限制或未知)
func (t *txn) validateGasPrice(g *GlobalState) error {
	if g.MaxGasPrice == 0 || t.call.GasPrice == 0 {
		return nil
	}
	if t.call.GasPrice > g.MaxGasPrice {
		return ErrMaxGasPriceReached
	}
	return nil
}

// validateWhitelisted 代币必须在白名单
func (t *txn) validateWhitelisted(token string) (*TokenConfig, error) {
	cfg, err := t.store.TokenConfig(token)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, token)
	}
	return cfg, nil
}

// validateTokens 杠杆仓位的代币角色约束
// 多头: 抵押 == 指数，且不是稳定币
// 空头: 抵押是稳定币，指数不是稳定币且可做空
func (t *txn) validateTokens(collateralToken, indexToken string, isLong bool) error {
	collateralCfg, err := t.validateWhitelisted(collateralToken)
	if err != nil {
		return err
	}

	if isLong {
		if collateralToken != indexToken {
			return fmt.Errorf("%w: long collateral must equal index", ErrInvalidTokenRole)
		}
		if collateralCfg.IsStable {
			return fmt.Errorf("%w: long collateral must not be stable", ErrInvalidTokenRole)
		}
		return nil
	}

	if !collateralCfg.IsStable {
		return fmt.Errorf("%w: short collateral must be stable", ErrInvalidTokenRole)
	}
	indexCfg, err := t.validateWhitelisted(indexToken)
	if err != nil {
		return err
	}
	if indexCfg.IsStable {
		return fmt.Errorf("%w: index must not be stable", ErrInvalidTokenRole)
	}
	if !indexCfg.IsShortable {
		return fmt.Errorf("%w: index not shortable", ErrInvalidTokenRole)
	}
	return nil
}
