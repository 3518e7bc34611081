// 文件: pkg/bank/model.go
// 代币账本 - 事件与数据库模型
//
// 账本的每次变动都产生一条 TransferEvent，通过 NATS 传输，
// 由 NatsDBWriter 消费写入 MySQL (见 nats_db_writer.go)

package bank

import (
	"encoding/json"
	"time"
)

// NATS Subject
const (
	SubjectTransfers = "bank.transfers" // 账本变动事件
)

// TransferKind 变动类型
type TransferKind uint8

const (
	KindTransfer TransferKind = 1 // 转账
	KindMint     TransferKind = 2 // 增发
	KindBurn     TransferKind = 3 // 销毁
)

func (k TransferKind) String() string {
	switch k {
	case KindTransfer:
		return "TRANSFER"
	case KindMint:
		return "MINT"
	case KindBurn:
		return "BURN"
	default:
		return "UNKNOWN"
	}
}

// =============================================================================
// 账本变动事件
// =============================================================================

// TransferEvent 账本变动事件
// EventID 为幂等键 (snowflake)，重复投递不会重复入账
type TransferEvent struct {
	EventID int64        `json:"event_id"`
	Kind    TransferKind `json:"kind"`
	Token   string       `json:"token"`
	From    string       `json:"from"` // Mint 时为空
	To      string       `json:"to"`   // Burn 时为空
	Amount  int64        `json:"amount"`

	// 变更后余额 (冷存储直接落快照，不重放计算)
	FromAfter int64 `json:"from_after"`
	ToAfter   int64 `json:"to_after"`

	CreatedAt time.Time `json:"created_at"`
}

// ToJSON 序列化为 JSON (供 NATS 发送)
func (e *TransferEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// =============================================================================
// 数据库模型 (GORM)
// =============================================================================

// BalanceRecord 余额表记录
type BalanceRecord struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Holder    string    `gorm:"column:holder;type:varchar(128);uniqueIndex:uk_holder_token"`
	Token     string    `gorm:"column:token;type:varchar(64);uniqueIndex:uk_holder_token"`
	Amount    int64     `gorm:"column:amount"`
	Version   int       `gorm:"column:version"` // 乐观锁
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (BalanceRecord) TableName() string {
	return "bank_balances"
}

// TransferRecord 变动流水表记录
type TransferRecord struct {
	ID        int64        `gorm:"column:id;primaryKey;autoIncrement"`
	EventID   int64        `gorm:"column:event_id;uniqueIndex"`
	Kind      TransferKind `gorm:"column:kind"`
	Token     string       `gorm:"column:token;type:varchar(64);index"`
	FromAddr  string       `gorm:"column:from_addr;type:varchar(128);index"`
	ToAddr    string       `gorm:"column:to_addr;type:varchar(128);index"`
	Amount    int64        `gorm:"column:amount"`
	CreatedAt time.Time    `gorm:"column:created_at"`
}

func (TransferRecord) TableName() string {
	return "bank_transfers"
}
