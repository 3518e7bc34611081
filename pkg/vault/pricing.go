// 文件: pkg/vault/pricing.go
// 价格读取与 USD/代币换算
//
// 【取价方向约定】对调用方不利的一侧:
// - 计价值 (抵押/赎回): min price
// - USD 换最少代币数: max price
// - USD 换最多代币数 (预留/利润上限): min price
//
// 引擎不持有价格，全部走 oracle.PriceOracle 接口。

package vault

import "fmt"

// maxPrice 卖一侧价格，<= 0 视为预言机故障
func (t *txn) maxPrice(token string) (int64, error) {
	g, err := t.global()
	if err != nil {
		return 0, err
	}
	p, err := t.v.oracle.MaxPrice(token, g.IncludeAmmPrice, g.UseSwapPricing)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, token, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, token)
	}
	return p, nil
}

// minPrice 买一侧价格
func (t *txn) minPrice(token string) (int64, error) {
	g, err := t.global()
	if err != nil {
		return 0, err
	}
	p, err := t.v.oracle.MinPrice(token, g.IncludeAmmPrice, g.UseSwapPricing)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, token, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, token)
	}
	return p, nil
}

// tokenDecimals 读代币 decimals，未配置返回 ErrTokenNotWhitelisted
func (t *txn) tokenDecimals(token string) (int64, error) {
	cfg, err := t.store.TokenConfig(token)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, fmt.Errorf("%w: %s", ErrTokenNotWhitelisted, token)
	}
	return cfg.Decimals, nil
}

// tokenToUsdMin 代币数量 → USD (按 min price，保守计价)
func (t *txn) tokenToUsdMin(token string, amount int64) (int64, error) {
	if amount == 0 {
		return 0, nil
	}
	price, err := t.minPrice(token)
	if err != nil {
		return 0, err
	}
	dec, err := t.tokenDecimals(token)
	if err != nil {
		return 0, err
	}
	return mulDiv(amount, price, pow10(dec))
}

// usdToTokenMin USD → 最少代币数 (按 max price)
func (t *txn) usdToTokenMin(token string, usd int64) (int64, error) {
	if usd == 0 {
		return 0, nil
	}
	price, err := t.maxPrice(token)
	if err != nil {
		return 0, err
	}
	return t.usdToToken(token, usd, price)
}

// usdToTokenMax USD → 最多代币数 (按 min price)
func (t *txn) usdToTokenMax(token string, usd int64) (int64, error) {
	if usd == 0 {
		return 0, nil
	}
	price, err := t.minPrice(token)
	if err != nil {
		return 0, err
	}
	return t.usdToToken(token, usd, price)
}

func (t *txn) usdToToken(token string, usd, price int64) (int64, error) {
	dec, err := t.tokenDecimals(token)
	if err != nil {
		return 0, err
	}
	return mulDiv(usd, pow10(dec), price)
}
