// 文件: pkg/vault/pnl.go
// 盈亏与均价计算
//
// 【核心公式】
//   delta = size × |均价 - 现价| / 均价
//   多头盈利: 现价 > 均价; 空头盈利: 均价 > 现价
//
// 【取价方向】兑付按对持仓人不利的一侧:
//   多头按 min price 计盈亏，空头按 max price
//
// 【最小盈利窗口】开仓后 MinProfitTime 内，盈利不超过
// MinProfitBasisPoints 的部分按 0 处理，抑制贴价差刷单。

package vault

// delta 持仓浮动盈亏
// 返回 (是否盈利, 盈亏 USD)
func (t *txn) delta(indexToken string, size, averagePrice int64, isLong bool, lastIncreasedTime int64) (bool, int64, error) {
	if averagePrice <= 0 {
		return false, 0, ErrInvalidPrice
	}
	var price int64
	var err error
	if isLong {
		price, err = t.minPrice(indexToken)
	} else {
		price, err = t.maxPrice(indexToken)
	}
	if err != nil {
		return false, 0, err
	}

	priceDelta := abs(averagePrice - price)
	d, err := mulDiv(size, priceDelta, averagePrice)
	if err != nil {
		return false, 0, err
	}

	var hasProfit bool
	if isLong {
		hasProfit = price > averagePrice
	} else {
		hasProfit = averagePrice > price
	}

	// 最小盈利窗口
	if hasProfit {
		minBps, err := t.minProfitBasisPoints(indexToken)
		if err != nil {
			return false, 0, err
		}
		g, err := t.global()
		if err != nil {
			return false, 0, err
		}
		if t.call.Now <= lastIncreasedTime+g.MinProfitTime {
			threshold, err := mulDiv(size, minBps, BasisPointsDivisor)
			if err != nil {
				return false, 0, err
			}
			if d <= threshold {
				d = 0
			}
		}
	}
	return hasProfit, d, nil
}

func (t *txn) minProfitBasisPoints(token string) (int64, error) {
	cfg, err := t.store.TokenConfig(token)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, nil
	}
	return cfg.MinProfitBasisPoints, nil
}

// nextAveragePrice 加仓后的新均价
//
// 【推导】保持 "新均价下的盈亏 == 旧盈亏" 不变:
//   nextAvg = nextPrice × nextSize / (nextSize ± delta)
// 多头盈利取 +，亏损取 -; 空头相反
func (t *txn) nextAveragePrice(indexToken string, size, averagePrice int64, isLong bool, nextPrice, sizeDelta, lastIncreasedTime int64) (int64, error) {
	hasProfit, d, err := t.delta(indexToken, size, averagePrice, isLong, lastIncreasedTime)
	if err != nil {
		return 0, err
	}
	nextSize, err := addChecked(size, sizeDelta)
	if err != nil {
		return 0, err
	}

	var divisor int64
	if isLong {
		if hasProfit {
			divisor = nextSize + d
		} else {
			divisor = nextSize - d
		}
	} else {
		if hasProfit {
			divisor = nextSize - d
		} else {
			divisor = nextSize + d
		}
	}
	if divisor <= 0 {
		return 0, ErrInvalidAmount
	}
	return mulDiv(nextPrice, nextSize, divisor)
}

// nextGlobalShortAveragePrice 全局空头敞口加仓后的新均价
func (t *txn) nextGlobalShortAveragePrice(indexToken string, nextPrice, sizeDelta int64) (int64, error) {
	s, err := t.store.GlobalShort(indexToken)
	if err != nil {
		return 0, err
	}
	if s.Size == 0 || s.AveragePrice == 0 {
		return nextPrice, nil
	}

	priceDelta := abs(s.AveragePrice - nextPrice)
	d, err := mulDiv(s.Size, priceDelta, s.AveragePrice)
	if err != nil {
		return 0, err
	}
	hasProfit := s.AveragePrice > nextPrice

	nextSize, err := addChecked(s.Size, sizeDelta)
	if err != nil {
		return 0, err
	}
	var divisor int64
	if hasProfit {
		divisor = nextSize - d
	} else {
		divisor = nextSize + d
	}
	if divisor <= 0 {
		return 0, ErrInvalidAmount
	}
	return mulDiv(nextPrice, nextSize, divisor)
}

// globalShortDelta 全局空头敞口的浮动盈亏
// 按均价折算名义数量: delta = size × |均价 - 现价| / 均价
func (t *txn) globalShortDelta(indexToken string) (bool, int64, error) {
	s, err := t.store.GlobalShort(indexToken)
	if err != nil {
		return false, 0, err
	}
	if s.Size == 0 || s.AveragePrice == 0 {
		return false, 0, nil
	}
	price, err := t.maxPrice(indexToken)
	if err != nil {
		return false, 0, err
	}
	priceDelta := abs(s.AveragePrice - price)
	d, err := mulDiv(s.Size, priceDelta, s.AveragePrice)
	if err != nil {
		return false, 0, err
	}
	return s.AveragePrice > price, d, nil
}
