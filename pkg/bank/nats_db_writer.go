// 文件: pkg/bank/nats_db_writer.go
// 代币账本 - NATS 数据库写入器
//
// 监听 NATS 账本事件，写入 MySQL 冷存储:
// - bank.transfers: 流水 + 余额快照

package bank

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"vault.io/pkg/nats"
)

// =============================================================================
// NatsDBWriter - NATS 数据库写入器
// =============================================================================

// NatsDBWriter NATS 数据库写入器
type NatsDBWriter struct {
	repo       *BankRepo
	subscriber *nats.Subscriber

	// 统计
	stats struct {
		Received     int64
		WrittenCount int64
		ErrorCount   int64
	}
	mu sync.Mutex
}

// NewNatsDBWriter 创建 NATS 数据库写入器
func NewNatsDBWriter(repo *BankRepo, natsURL string) (*NatsDBWriter, error) {
	w := &NatsDBWriter{repo: repo}

	subscriber, err := nats.NewSubscriber(natsURL, w.handleMessage)
	if err != nil {
		return nil, err
	}
	w.subscriber = subscriber

	return w, nil
}

// Start 启动监听
func (w *NatsDBWriter) Start() error {
	// 队列订阅: 多实例时负载均衡，事件幂等保证不重复入账
	return w.subscriber.SubscribeQueue(SubjectTransfers, "bank-db-writer")
}

// Stop 停止
func (w *NatsDBWriter) Stop() error {
	return w.subscriber.Close()
}

// handleMessage 处理消息
func (w *NatsDBWriter) handleMessage(subject string, data []byte) error {
	if subject != SubjectTransfers {
		return nil
	}

	var event TransferEvent
	if err := json.Unmarshal(data, &event); err != nil {
		w.mu.Lock()
		w.stats.ErrorCount++
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.stats.Received++
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.repo.ApplyEvent(ctx, &event); err != nil {
		w.mu.Lock()
		w.stats.ErrorCount++
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.stats.WrittenCount++
	w.mu.Unlock()

	return nil
}

// Stats 获取统计
func (w *NatsDBWriter) Stats() map[string]int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]int64{
		"received":      w.stats.Received,
		"written_count": w.stats.WrittenCount,
		"error_count":   w.stats.ErrorCount,
	}
}
