// 文件: pkg/bank/repo.go
// 代币账本冷存储 (GORM 实现)
//
// 使用 GORM 简化数据库操作:
// - Upsert 余额快照
// - 幂等流水插入 (INSERT IGNORE)
// - 事务管理

package bank

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// BankRepo - 账本冷存储仓库
// =============================================================================

// BankRepo 余额与流水仓库
type BankRepo struct {
	db *gorm.DB
}

// NewBankRepo 创建仓库
func NewBankRepo(db *gorm.DB) *BankRepo {
	return &BankRepo{db: db}
}

// AutoMigrate 建表 (开发环境用)
func (r *BankRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&BalanceRecord{}, &TransferRecord{})
}

// =============================================================================
// 余额操作
// =============================================================================

// GetBalance 查询余额记录，不存在返回 nil
func (r *BankRepo) GetBalance(ctx context.Context, holder, token string) (*BalanceRecord, error) {
	var record BalanceRecord
	err := r.db.WithContext(ctx).
		Where("holder = ? AND token = ?", holder, token).
		First(&record).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertBalance 落余额快照
// 事件里带的是变更后余额，直接覆盖，不做增量计算
func (r *BankRepo) UpsertBalance(ctx context.Context, holder, token string, amount int64, at time.Time) error {
	record := &BalanceRecord{
		Holder:    holder,
		Token:     token,
		Amount:    amount,
		UpdatedAt: at,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "holder"}, {Name: "token"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"amount":     amount,
				"version":    gorm.Expr("version + 1"),
				"updated_at": at,
			}),
		}).
		Create(record).Error
}

// =============================================================================
// 流水操作
// =============================================================================

// InsertTransfer 插入流水 (幂等，按 EventID 去重)
func (r *BankRepo) InsertTransfer(ctx context.Context, e *TransferEvent) error {
	record := &TransferRecord{
		EventID:   e.EventID,
		Kind:      e.Kind,
		Token:     e.Token,
		FromAddr:  e.From,
		ToAddr:    e.To,
		Amount:    e.Amount,
		CreatedAt: e.CreatedAt,
	}

	// INSERT IGNORE 效果
	return r.db.WithContext(ctx).
		Clauses(clause.Insert{Modifier: "IGNORE"}).
		Create(record).Error
}

// ListTransfers 查询某持有人的流水
func (r *BankRepo) ListTransfers(ctx context.Context, holder string, limit, offset int) ([]*TransferRecord, error) {
	var records []*TransferRecord
	err := r.db.WithContext(ctx).
		Where("from_addr = ? OR to_addr = ?", holder, holder).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

// =============================================================================
// 事务支持
// =============================================================================

// ApplyEvent 事务中同时落流水与余额快照
func (r *BankRepo) ApplyEvent(ctx context.Context, e *TransferEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &BankRepo{db: tx}
		if err := txRepo.InsertTransfer(ctx, e); err != nil {
			return err
		}
		if e.From != "" {
			if err := txRepo.UpsertBalance(ctx, e.From, e.Token, e.FromAfter, e.CreatedAt); err != nil {
				return err
			}
		}
		if e.To != "" {
			if err := txRepo.UpsertBalance(ctx, e.To, e.Token, e.ToAfter, e.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}
