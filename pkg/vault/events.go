// 文件: pkg/vault/events.go
// 金库事件
//
// 事件在调用内先积攒，提交成功后才发 NATS (fire-and-forget)。
// 失败的调用不发任何事件 — 事件流和状态保持一致。

package vault

import "log"

// NATS Subject
const (
	SubjectPositionIncrease  = "vault.position.increase"
	SubjectPositionDecrease  = "vault.position.decrease"
	SubjectPositionLiquidate = "vault.position.liquidate"
	SubjectSwap              = "vault.swap"
	SubjectUsdgBuy           = "vault.usdg.buy"
	SubjectUsdgSell          = "vault.usdg.sell"
)

// PositionEvent 持仓变动事件
type PositionEvent struct {
	Account         string `json:"account"`
	CollateralToken string `json:"collateral_token"`
	IndexToken      string `json:"index_token"`
	IsLong          bool   `json:"is_long"`
	SizeDelta       int64  `json:"size_delta"`
	CollateralDelta int64  `json:"collateral_delta"`
	Price           int64  `json:"price"`
	UsdOut          int64  `json:"usd_out"`
	FeeUsd          int64  `json:"fee_usd"`
}

// SwapEvent 交换事件
type SwapEvent struct {
	Account   string `json:"account"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  int64  `json:"amount_in"`
	AmountOut int64  `json:"amount_out"`
	FeeBps    int64  `json:"fee_bps"`
}

// UsdgEvent 买入/卖出 USDG 事件
type UsdgEvent struct {
	Account    string `json:"account"`
	Token      string `json:"token"`
	TokenDelta int64  `json:"token_delta"`
	UsdgDelta  int64  `json:"usdg_delta"`
	FeeBps     int64  `json:"fee_bps"`
}

type stagedEvent struct {
	subject string
	payload any
}

// publish 把事件积攒到调用缓冲，提交后统一发送
func (t *txn) publish(subject string, payload any) {
	t.events = append(t.events, stagedEvent{subject: subject, payload: payload})
}

// flushEvents 提交后发送全部事件; 发布失败只记日志
func (v *Vault) flushEvents(events []stagedEvent) {
	if v.publisher == nil {
		return
	}
	for _, e := range events {
		if err := v.publisher.Publish(e.subject, e.payload); err != nil {
			log.Printf("[Vault] publish event failed: subject=%s err=%v", e.subject, err)
		}
	}
}
