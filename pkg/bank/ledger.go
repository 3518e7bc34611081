// 文件: pkg/bank/ledger.go
// 代币账本接口与内存实现
//
// 金库只通过这个接口接触代币: 查余额、转账、增发/销毁 USDG。
// 热路径走内存账本，变动事件异步发 NATS 落库 (热/冷分离)。
//
// 【面试】为什么余额是热内存而流水走异步?
// → 记账引擎同步路径上不能有网络 IO; 冷存储靠幂等事件最终一致。

package bank

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	// ErrInsufficientBalance 余额不足
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	// ErrInvalidTransfer 非法转账参数
	ErrInvalidTransfer = errors.New("bank: invalid transfer")
)

// Ledger 代币账本接口
type Ledger interface {
	// BalanceOf 查询余额
	BalanceOf(ctx context.Context, holder, token string) (int64, error)

	// Transfer 转账; 余额不足返回 ErrInsufficientBalance
	Transfer(ctx context.Context, token, from, to string, amount int64) error

	// Mint 增发到 to
	Mint(ctx context.Context, token, to string, amount int64) error

	// Burn 从 from 销毁
	Burn(ctx context.Context, token, from string, amount int64) error

	// TotalSupply 代币总量 (USDG 债务引擎用)
	TotalSupply(ctx context.Context, token string) (int64, error)
}

// EventSink 变动事件出口 (通常是 NATS Publisher)
type EventSink interface {
	Publish(subject string, data any) error
}

// 确保实现了接口
var _ Ledger = (*MemoryLedger)(nil)

// =============================================================================
// MemoryLedger - 内存账本
// =============================================================================

// MemoryLedger 进程内账本
// sink 可为 nil (测试); 发布失败只记日志，不影响入账
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64 // key: holder + "@" + token
	supplies map[string]int64 // key: token
	sink     EventSink
}

// NewMemoryLedger 创建空账本
func NewMemoryLedger(sink EventSink) *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		supplies: make(map[string]int64),
		sink:     sink,
	}
}

func balanceKey(holder, token string) string {
	return holder + "@" + token
}

// SetBalance 直接设置余额 (测试/初始化用，不发事件)
func (l *MemoryLedger) SetBalance(holder, token string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey(holder, token)] = amount
}

func (l *MemoryLedger) BalanceOf(_ context.Context, holder, token string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey(holder, token)], nil
}

func (l *MemoryLedger) TotalSupply(_ context.Context, token string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supplies[token], nil
}

func (l *MemoryLedger) Transfer(_ context.Context, token, from, to string, amount int64) error {
	if amount <= 0 || from == "" || to == "" {
		return ErrInvalidTransfer
	}
	l.mu.Lock()
	fromKey, toKey := balanceKey(from, token), balanceKey(to, token)
	if l.balances[fromKey] < amount {
		l.mu.Unlock()
		return ErrInsufficientBalance
	}
	l.balances[fromKey] -= amount
	l.balances[toKey] += amount
	fromAfter, toAfter := l.balances[fromKey], l.balances[toKey]
	l.mu.Unlock()

	l.emit(&TransferEvent{
		EventID: GenerateEventID(), Kind: KindTransfer, Token: token,
		From: from, To: to, Amount: amount,
		FromAfter: fromAfter, ToAfter: toAfter, CreatedAt: time.Now(),
	})
	return nil
}

func (l *MemoryLedger) Mint(_ context.Context, token, to string, amount int64) error {
	if amount <= 0 || to == "" {
		return ErrInvalidTransfer
	}
	l.mu.Lock()
	toKey := balanceKey(to, token)
	l.balances[toKey] += amount
	l.supplies[token] += amount
	toAfter := l.balances[toKey]
	l.mu.Unlock()

	l.emit(&TransferEvent{
		EventID: GenerateEventID(), Kind: KindMint, Token: token,
		To: to, Amount: amount, ToAfter: toAfter, CreatedAt: time.Now(),
	})
	return nil
}

func (l *MemoryLedger) Burn(_ context.Context, token, from string, amount int64) error {
	if amount <= 0 || from == "" {
		return ErrInvalidTransfer
	}
	l.mu.Lock()
	fromKey := balanceKey(from, token)
	if l.balances[fromKey] < amount {
		l.mu.Unlock()
		return ErrInsufficientBalance
	}
	l.balances[fromKey] -= amount
	l.supplies[token] -= amount
	fromAfter := l.balances[fromKey]
	l.mu.Unlock()

	l.emit(&TransferEvent{
		EventID: GenerateEventID(), Kind: KindBurn, Token: token,
		From: from, Amount: amount, FromAfter: fromAfter, CreatedAt: time.Now(),
	})
	return nil
}

func (l *MemoryLedger) emit(e *TransferEvent) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Publish(SubjectTransfers, e); err != nil {
		log.Printf("[Bank] publish transfer event failed: event_id=%d err=%v", e.EventID, err)
	}
}
