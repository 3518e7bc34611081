// 文件: pkg/oracle/oracle.go
// 价格预言机
//
// 【设计】引擎不持有任何价格常量，全部价格都来自这个接口。
// 价格是 1e12 精度的 USD 定点数。
// MaxPrice/MinPrice 的区分来自买卖盘口: 开多/兑付按对自己不利的一侧取价，
// 防止在价差内套利。
//
// 【面试】为什么接口带 includeAmm / useSwapPricing 标志?
// → 是否掺入 AMM 现货价、是否用交换专用取价是全局配置，
//   由调用方透传，预言机实现自行决定是否区分。

package oracle

import (
	"errors"
	"sync"
)

// ErrNoPrice 代币没有可用报价
var ErrNoPrice = errors.New("oracle: no price for token")

// PriceOracle 价格查询接口
type PriceOracle interface {
	// MaxPrice 卖一侧价格 (偏高)
	MaxPrice(token string, includeAmm, useSwapPricing bool) (int64, error)
	// MinPrice 买一侧价格 (偏低)
	MinPrice(token string, includeAmm, useSwapPricing bool) (int64, error)
}

// Quote 单个代币的报价
type Quote struct {
	MaxPrice int64 // 1e12 精度
	MinPrice int64
	AmmPrice int64 // 0 表示没有 AMM 报价
}

// =============================================================================
// StaticOracle - 内存报价表
// =============================================================================

// 确保实现了接口
var _ PriceOracle = (*StaticOracle)(nil)

// StaticOracle 内存报价表
// 由外部喂价 (测试直接 SetQuote，生产由 Kafka 行情流驱动，见 kafka_feed.go)
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStaticOracle 创建空报价表
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{quotes: make(map[string]Quote)}
}

// SetQuote 更新报价
func (o *StaticOracle) SetQuote(token string, q Quote) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[token] = q
}

// SetPrice 最大最小同价的便捷喂价 (测试常用)
func (o *StaticOracle) SetPrice(token string, price int64) {
	o.SetQuote(token, Quote{MaxPrice: price, MinPrice: price})
}

func (o *StaticOracle) quote(token string) (Quote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	q, ok := o.quotes[token]
	if !ok || q.MaxPrice <= 0 || q.MinPrice <= 0 {
		return Quote{}, ErrNoPrice
	}
	return q, nil
}

// MaxPrice 卖一侧价格
// includeAmm 时掺入 AMM 价取较大者 (对取 max 的一侧更保守)
func (o *StaticOracle) MaxPrice(token string, includeAmm, _ bool) (int64, error) {
	q, err := o.quote(token)
	if err != nil {
		return 0, err
	}
	p := q.MaxPrice
	if includeAmm && q.AmmPrice > p {
		p = q.AmmPrice
	}
	return p, nil
}

// MinPrice 买一侧价格
func (o *StaticOracle) MinPrice(token string, includeAmm, _ bool) (int64, error) {
	q, err := o.quote(token)
	if err != nil {
		return 0, err
	}
	p := q.MinPrice
	if includeAmm && q.AmmPrice > 0 && q.AmmPrice < p {
		p = q.AmmPrice
	}
	return p, nil
}
