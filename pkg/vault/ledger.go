// 文件: pkg/vault/ledger.go
// 持仓状态机: 加仓 / 减仓 / 清算
//
// 【状态机】无记录 → Open (Size>0) → 减到 0 时删除记录
//
// 【多空的记账差异】
// - 多头: 抵押进池子，池子对持仓人的负债记在 GuaranteedUsd (size - collateral)
// - 空头: 抵押不进池子，敞口记在 GlobalShortState
//
// 流程主干与字段更新顺序经不起重排 — 费用要在抵押入账后收，
// 清算判定要在 size 更新后做。

package vault

import (
	"fmt"
	"log"
)

// validatePosition 持仓不变量: Size==0 ⇒ Collateral==0; Size >= Collateral
func validatePosition(size, collateral int64) error {
	if size == 0 {
		if collateral != 0 {
			return fmt.Errorf("%w: collateral without size", ErrInvalidAmount)
		}
		return nil
	}
	if size < collateral {
		return fmt.Errorf("%w: size below collateral", ErrInvalidAmount)
	}
	return nil
}

// increasePosition 加仓 (开仓是 Size==0 的特例)
func (t *txn) increasePosition(account, collateralToken, indexToken string, sizeDelta int64, isLong bool) error {
	g, err := t.global()
	if err != nil {
		return err
	}
	if !g.LeverageEnabled {
		return ErrLeverageDisabled
	}
	if err := t.validateGasPrice(g); err != nil {
		return err
	}
	if err := t.validateRouter(account); err != nil {
		return err
	}
	if err := t.validateTokens(collateralToken, indexToken, isLong); err != nil {
		return err
	}
	if err := t.updateCumulativeFundingRate(collateralToken); err != nil {
		return err
	}

	key := PositionKey{Account: account, CollateralToken: collateralToken, IndexToken: indexToken, IsLong: isLong}
	encKey, err := key.Encode()
	if err != nil {
		return err
	}
	position, err := t.store.Position(encKey)
	if err != nil {
		return err
	}
	if position == nil {
		position = &Position{}
	}

	// 开仓/加仓按对持仓人不利的一侧取价
	var price int64
	if isLong {
		price, err = t.maxPrice(indexToken)
	} else {
		price, err = t.minPrice(indexToken)
	}
	if err != nil {
		return err
	}

	if position.Size == 0 {
		position.AveragePrice = price
	}
	if position.Size > 0 && sizeDelta > 0 {
		position.AveragePrice, err = t.nextAveragePrice(indexToken, position.Size, position.AveragePrice, isLong, price, sizeDelta, position.LastIncreasedTime)
		if err != nil {
			return err
		}
	}

	fee, err := t.collectMarginFees(collateralToken, sizeDelta, position.Size, position.EntryFundingRate)
	if err != nil {
		return err
	}

	collateralDelta, err := t.transferIn(collateralToken)
	if err != nil {
		return err
	}
	collateralDeltaUsd, err := t.tokenToUsdMin(collateralToken, collateralDelta)
	if err != nil {
		return err
	}

	position.Collateral, err = addChecked(position.Collateral, collateralDeltaUsd)
	if err != nil {
		return err
	}
	if position.Collateral < fee {
		return fmt.Errorf("%w: fee exceeds collateral", ErrInsufficientCollateral)
	}
	position.Collateral -= fee

	f, err := t.store.Funding(collateralToken)
	if err != nil {
		return err
	}
	position.EntryFundingRate = f.CumulativeRate
	position.Size, err = addChecked(position.Size, sizeDelta)
	if err != nil {
		return err
	}
	position.LastIncreasedTime = t.call.Now

	if position.Size == 0 {
		return fmt.Errorf("%w: empty position", ErrInvalidAmount)
	}
	if err := validatePosition(position.Size, position.Collateral); err != nil {
		return err
	}
	if err := t.store.SetPosition(encKey, position); err != nil {
		return err
	}
	state, _, err := t.liquidationState(key, position)
	if err != nil {
		return err
	}
	if state == LiquidationLiquidatable {
		return ErrInsufficientCollateral
	}
	if state == LiquidationMaxLeverageExceeded {
		return ErrMaxLeverageExceeded
	}

	// 为名义价值预留兑付代币
	reserveDelta, err := t.usdToTokenMax(collateralToken, sizeDelta)
	if err != nil {
		return err
	}
	position.ReserveAmount, err = addChecked(position.ReserveAmount, reserveDelta)
	if err != nil {
		return err
	}
	if err := t.increaseReservedAmount(collateralToken, reserveDelta); err != nil {
		return err
	}
	if err := t.store.SetPosition(encKey, position); err != nil {
		return err
	}

	if isLong {
		// 抵押视作池子的一部分，对持仓人的负债进 GuaranteedUsd
		guaranteed, err := addChecked(sizeDelta, fee)
		if err != nil {
			return err
		}
		if err := t.increaseGuaranteedUsd(collateralToken, guaranteed); err != nil {
			return err
		}
		if err := t.decreaseGuaranteedUsd(collateralToken, collateralDeltaUsd); err != nil {
			return err
		}
		if err := t.increasePoolAmount(collateralToken, collateralDelta); err != nil {
			return err
		}
		feeTokens, err := t.usdToTokenMin(collateralToken, fee)
		if err != nil {
			return err
		}
		if err := t.decreasePoolAmount(collateralToken, feeTokens); err != nil {
			return err
		}
	} else {
		s, err := t.store.GlobalShort(indexToken)
		if err != nil {
			return err
		}
		if s.Size == 0 {
			s.AveragePrice = price
		} else {
			s.AveragePrice, err = t.nextGlobalShortAveragePrice(indexToken, price, sizeDelta)
			if err != nil {
				return err
			}
		}
		if err := t.store.SetGlobalShort(indexToken, s); err != nil {
			return err
		}
		if err := t.increaseGlobalShortSize(indexToken, sizeDelta); err != nil {
			return err
		}
	}

	log.Printf("[Ledger] increase position: account=%s index=%s long=%v size_delta=%d price=%d fee=%d",
		account, indexToken, isLong, sizeDelta, price, fee)
	t.publish(SubjectPositionIncrease, &PositionEvent{
		Account: account, CollateralToken: collateralToken, IndexToken: indexToken,
		IsLong: isLong, SizeDelta: sizeDelta, CollateralDelta: collateralDeltaUsd,
		Price: price, FeeUsd: fee,
	})
	return nil
}

// decreasePosition 减仓 (sizeDelta == Size 时平仓删除记录)
// 返回付给 receiver 的代币数量
func (t *txn) decreasePosition(account, collateralToken, indexToken string, collateralDelta, sizeDelta int64, isLong bool, receiver string) (int64, error) {
	if err := t.updateCumulativeFundingRate(collateralToken); err != nil {
		return 0, err
	}

	key := PositionKey{Account: account, CollateralToken: collateralToken, IndexToken: indexToken, IsLong: isLong}
	encKey, err := key.Encode()
	if err != nil {
		return 0, err
	}
	position, err := t.store.Position(encKey)
	if err != nil {
		return 0, err
	}
	if position == nil || position.Size == 0 {
		return 0, ErrPositionNotFound
	}
	if sizeDelta <= 0 || sizeDelta > position.Size {
		return 0, fmt.Errorf("%w: size delta out of range", ErrInvalidAmount)
	}
	if collateralDelta < 0 || position.Collateral < collateralDelta {
		return 0, fmt.Errorf("%w: collateral delta out of range", ErrInvalidAmount)
	}

	collateralBefore := position.Collateral

	// 按比例释放预留
	reserveDelta, err := mulDiv(position.ReserveAmount, sizeDelta, position.Size)
	if err != nil {
		return 0, err
	}
	position.ReserveAmount -= reserveDelta
	if err := t.decreaseReservedAmount(collateralToken, reserveDelta); err != nil {
		return 0, err
	}
	if err := t.store.SetPosition(encKey, position); err != nil {
		return 0, err
	}

	usdOut, usdOutAfterFee, err := t.reduceCollateral(key, encKey, collateralDelta, sizeDelta)
	if err != nil {
		return 0, err
	}
	position, err = t.store.Position(encKey)
	if err != nil {
		return 0, err
	}

	if position.Size != sizeDelta {
		// 部分减仓
		f, err := t.store.Funding(collateralToken)
		if err != nil {
			return 0, err
		}
		position.EntryFundingRate = f.CumulativeRate
		position.Size -= sizeDelta
		if err := validatePosition(position.Size, position.Collateral); err != nil {
			return 0, err
		}
		if err := t.store.SetPosition(encKey, position); err != nil {
			return 0, err
		}
		state, _, err := t.liquidationState(key, position)
		if err != nil {
			return 0, err
		}
		if state == LiquidationLiquidatable {
			return 0, ErrInsufficientCollateral
		}
		if state == LiquidationMaxLeverageExceeded {
			return 0, ErrMaxLeverageExceeded
		}
		if isLong {
			if err := t.increaseGuaranteedUsd(collateralToken, collateralBefore-position.Collateral); err != nil {
				return 0, err
			}
			if err := t.decreaseGuaranteedUsd(collateralToken, sizeDelta); err != nil {
				return 0, err
			}
		}
	} else {
		// 全额平仓
		if isLong {
			if err := t.increaseGuaranteedUsd(collateralToken, collateralBefore); err != nil {
				return 0, err
			}
			if err := t.decreaseGuaranteedUsd(collateralToken, sizeDelta); err != nil {
				return 0, err
			}
		}
		if err := t.store.DeletePosition(encKey); err != nil {
			return 0, err
		}
	}

	if !isLong {
		if err := t.decreaseGlobalShortSize(indexToken, sizeDelta); err != nil {
			return 0, err
		}
	}

	var amountOut int64
	if usdOut > 0 {
		if isLong {
			poolDelta, err := t.usdToTokenMin(collateralToken, usdOut)
			if err != nil {
				return 0, err
			}
			if err := t.decreasePoolAmount(collateralToken, poolDelta); err != nil {
				return 0, err
			}
		}
		amountOut, err = t.usdToTokenMin(collateralToken, usdOutAfterFee)
		if err != nil {
			return 0, err
		}
		if err := t.transferOut(collateralToken, amountOut, receiver); err != nil {
			return 0, err
		}
	}

	log.Printf("[Ledger] decrease position: account=%s index=%s long=%v size_delta=%d usd_out=%d",
		account, indexToken, isLong, sizeDelta, usdOut)
	t.publish(SubjectPositionDecrease, &PositionEvent{
		Account: account, CollateralToken: collateralToken, IndexToken: indexToken,
		IsLong: isLong, SizeDelta: sizeDelta, CollateralDelta: collateralDelta,
		UsdOut: usdOut, FeeUsd: usdOut - usdOutAfterFee,
	})
	return amountOut, nil
}

// reduceCollateral 减仓时的抵押与盈亏结算
// 返回 (应付 USD, 扣费后应付 USD)
func (t *txn) reduceCollateral(key PositionKey, encKey string, collateralDelta, sizeDelta int64) (int64, int64, error) {
	position, err := t.store.Position(encKey)
	if err != nil {
		return 0, 0, err
	}

	fee, err := t.collectMarginFees(key.CollateralToken, sizeDelta, position.Size, position.EntryFundingRate)
	if err != nil {
		return 0, 0, err
	}

	hasProfit, delta, err := t.delta(key.IndexToken, position.Size, position.AveragePrice, key.IsLong, position.LastIncreasedTime)
	if err != nil {
		return 0, 0, err
	}
	// 本次减仓份额对应的盈亏
	adjustedDelta, err := mulDiv(sizeDelta, delta, position.Size)
	if err != nil {
		return 0, 0, err
	}

	var usdOut int64
	if hasProfit && adjustedDelta > 0 {
		usdOut = adjustedDelta
		position.RealisedPnl += adjustedDelta
		// 空头利润从池子兑付; 多头利润在平仓出金时统一扣池子
		if !key.IsLong {
			tokens, err := t.usdToTokenMin(key.CollateralToken, adjustedDelta)
			if err != nil {
				return 0, 0, err
			}
			if err := t.decreasePoolAmount(key.CollateralToken, tokens); err != nil {
				return 0, 0, err
			}
		}
	}
	if !hasProfit && adjustedDelta > 0 {
		if position.Collateral < adjustedDelta {
			return 0, 0, ErrPositionUnderwater
		}
		position.Collateral -= adjustedDelta
		// 空头亏损归池子
		if !key.IsLong {
			tokens, err := t.usdToTokenMin(key.CollateralToken, adjustedDelta)
			if err != nil {
				return 0, 0, err
			}
			if err := t.increasePoolAmount(key.CollateralToken, tokens); err != nil {
				return 0, 0, err
			}
		}
		position.RealisedPnl -= adjustedDelta
	}

	if collateralDelta > 0 {
		usdOut += collateralDelta
		position.Collateral -= collateralDelta
	}
	if position.Size == sizeDelta {
		// 全额平仓: 剩余抵押全部出金
		usdOut += position.Collateral
		position.Collateral = 0
	}

	usdOutAfterFee := usdOut
	if usdOut > fee {
		usdOutAfterFee = usdOut - fee
	} else {
		// 出金付不起费用: 从抵押里扣
		if position.Collateral < fee {
			return 0, 0, fmt.Errorf("%w: fee exceeds collateral", ErrInsufficientCollateral)
		}
		position.Collateral -= fee
		if key.IsLong {
			feeTokens, err := t.usdToTokenMin(key.CollateralToken, fee)
			if err != nil {
				return 0, 0, err
			}
			if err := t.decreasePoolAmount(key.CollateralToken, feeTokens); err != nil {
				return 0, 0, err
			}
		}
		usdOutAfterFee = usdOut
	}

	if err := t.store.SetPosition(encKey, position); err != nil {
		return 0, 0, err
	}
	return usdOut, usdOutAfterFee, nil
}

// liquidatePosition 清算
//
// 三态分支:
// - Healthy → 报错，仓位不能清算
// - MaxLeverageExceeded → 内部全额减仓，余值退回持仓人
// - Liquidatable → 没收抵押，清算费付给 feeReceiver
func (t *txn) liquidatePosition(account, collateralToken, indexToken string, isLong bool, feeReceiver string) error {
	g, err := t.global()
	if err != nil {
		return err
	}
	if g.InPrivateLiquidationMode {
		ok, err := t.store.IsLiquidator(t.call.Sender)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: not a liquidator", ErrUnauthorized)
		}
	}
	if err := t.validateTokens(collateralToken, indexToken, isLong); err != nil {
		return err
	}

	// 清算期间不掺 AMM 价，防止现货闪崩连带清算
	restore := g.IncludeAmmPrice
	g.IncludeAmmPrice = false
	if err := t.store.SetGlobal(g); err != nil {
		return err
	}
	defer func() {
		if g2, err2 := t.global(); err2 == nil {
			g2.IncludeAmmPrice = restore
			t.store.SetGlobal(g2)
		}
	}()

	if err := t.updateCumulativeFundingRate(collateralToken); err != nil {
		return err
	}

	key := PositionKey{Account: account, CollateralToken: collateralToken, IndexToken: indexToken, IsLong: isLong}
	encKey, err := key.Encode()
	if err != nil {
		return err
	}
	position, err := t.store.Position(encKey)
	if err != nil {
		return err
	}
	if position == nil || position.Size == 0 {
		return ErrPositionNotFound
	}

	state, marginFees, err := t.liquidationState(key, position)
	if err != nil {
		return err
	}
	if state == LiquidationHealthy {
		return fmt.Errorf("%w: position cannot be liquidated", ErrInvalidAmount)
	}
	if state == LiquidationMaxLeverageExceeded {
		// 还有净值: 全额减仓，余值退回持仓人
		_, err := t.decreasePosition(account, collateralToken, indexToken, 0, position.Size, isLong, account)
		return err
	}

	feeTokens, err := t.usdToTokenMin(collateralToken, marginFees)
	if err != nil {
		return err
	}
	if err := t.increaseFeeReserves(collateralToken, feeTokens); err != nil {
		return err
	}

	if err := t.decreaseReservedAmount(collateralToken, position.ReserveAmount); err != nil {
		return err
	}

	if isLong {
		if err := t.decreaseGuaranteedUsd(collateralToken, position.Size-position.Collateral); err != nil {
			return err
		}
		if err := t.decreasePoolAmount(collateralToken, feeTokens); err != nil {
			return err
		}
	} else {
		// 空头抵押不在池子里，没收的剩余部分归池子
		if marginFees < position.Collateral {
			remaining := position.Collateral - marginFees
			remainingTokens, err := t.usdToTokenMin(collateralToken, remaining)
			if err != nil {
				return err
			}
			if err := t.increasePoolAmount(collateralToken, remainingTokens); err != nil {
				return err
			}
		}
		if err := t.decreaseGlobalShortSize(indexToken, position.Size); err != nil {
			return err
		}
	}

	if err := t.store.DeletePosition(encKey); err != nil {
		return err
	}

	// 清算费从池子付给 feeReceiver
	liqFeeTokens, err := t.usdToTokenMin(collateralToken, g.LiquidationFeeUsd)
	if err != nil {
		return err
	}
	if err := t.decreasePoolAmount(collateralToken, liqFeeTokens); err != nil {
		return err
	}
	if err := t.transferOut(collateralToken, liqFeeTokens, feeReceiver); err != nil {
		return err
	}

	log.Printf("[Ledger] liquidate position: account=%s index=%s long=%v size=%d fees_usd=%d",
		account, indexToken, isLong, position.Size, marginFees)
	t.publish(SubjectPositionLiquidate, &PositionEvent{
		Account: account, CollateralToken: collateralToken, IndexToken: indexToken,
		IsLong: isLong, SizeDelta: position.Size, FeeUsd: marginFees,
	})
	return nil
}
