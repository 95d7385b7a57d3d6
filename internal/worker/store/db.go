package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/model"
)

const dbBatchSize = 500

// DBStore gorm 实现：持有者按 (token_id, account) upsert，转账按 (token_id, transaction_id) 去重
type DBStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	newSnapshotID func() string
}

func NewDBStore(db *gorm.DB, logger *zap.Logger) *DBStore {
	return &DBStore{db: db, logger: logger, now: time.Now, newSnapshotID: uuid.NewString}
}

// AutoMigrate 建表
func (s *DBStore) AutoMigrate() error {
	return s.db.AutoMigrate(&model.Token{}, &model.TokenHolder{}, &model.TokenTransfer{})
}

func (s *DBStore) SaveTokenInfo(ctx context.Context, info model.TokenInfo, raw []byte) error {
	token := model.NewToken(info, raw, s.now())
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "symbol", "decimals", "total_supply", "treasury_account_id", "metadata", "last_analyzed", "updated_at",
		}),
	}).Create(token).Error
	if err != nil {
		return apperr.Persistence("upsert token", err)
	}
	return nil
}

func (s *DBStore) LoadTokenInfo(ctx context.Context, tokenID string) (*model.TokenInfo, error) {
	var token model.Token
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).Take(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(tokenID)
		}
		return nil, apperr.Persistence("load token", err)
	}
	info := token.Info()
	return &info, nil
}

// SaveHolders upsert 后在同一事务内删除旧快照残留并重新计算 treasury：余额最大者，相同时 id 小者优先。
// 残留按 snapshot_id 判断。
func (s *DBStore) SaveHolders(ctx context.Context, tokenID string, holders []model.Holder) error {
	if len(holders) == 0 {
		return nil
	}
	now := s.now()
	snapshot := s.newSnapshotID()
	rows := make([]*model.TokenHolder, 0, len(holders))
	for _, h := range holders {
		row := model.NewTokenHolder(tokenID, h, now)
		row.SnapshotID = snapshot
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "token_id"}, {Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"raw_balance", "balance", "snapshot_id", "updated_at",
			}),
		}).CreateInBatches(rows, dbBatchSize).Error; err != nil {
			return err
		}
		// 本次快照中不存在的账户视为已清仓
		if err := tx.Where("token_id = ? AND snapshot_id <> ?", tokenID, snapshot).Delete(&model.TokenHolder{}).Error; err != nil {
			return err
		}
		return recomputeTreasury(tx, tokenID)
	})
	if err != nil {
		return apperr.Persistence("upsert holders", err)
	}
	s.logger.Info("Saved holders", zap.String("token_id", tokenID), zap.Int("count", len(holders)))
	return nil
}

func recomputeTreasury(tx *gorm.DB, tokenID string) error {
	if err := tx.Model(&model.TokenHolder{}).
		Where("token_id = ? AND is_treasury = ?", tokenID, true).
		Update("is_treasury", false).Error; err != nil {
		return err
	}
	var top model.TokenHolder
	err := tx.Where("token_id = ?", tokenID).Order("balance DESC").Order("id ASC").Take(&top).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return tx.Model(&model.TokenHolder{}).Where("id = ?", top.ID).Update("is_treasury", true).Error
}

func (s *DBStore) LoadHolders(ctx context.Context, tokenID string) ([]model.Holder, error) {
	var rows []model.TokenHolder
	if err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("load holders", err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound(tokenID)
	}
	holders := make([]model.Holder, 0, len(rows))
	for i := range rows {
		holders = append(holders, rows[i].Holder())
	}
	return holders, nil
}

func (s *DBStore) treasuryAccount(tx *gorm.DB, tokenID string) string {
	var accounts []string
	tx.Model(&model.TokenHolder{}).
		Where("token_id = ? AND is_treasury = ?", tokenID, true).
		Limit(1).
		Pluck("account", &accounts)
	if len(accounts) == 0 {
		return ""
	}
	return accounts[0]
}

func (s *DBStore) SaveTransfers(ctx context.Context, tokenID string, records []model.TransferRecord, mode WriteMode) (int, error) {
	now := s.now()
	var written int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if mode == ModeRewrite {
			if err := tx.Where("token_id = ?", tokenID).Delete(&model.TokenTransfer{}).Error; err != nil {
				return err
			}
		}
		unique := dedupByTransactionID(records, make(map[string]struct{}, len(records)))
		if len(unique) == 0 {
			return nil
		}
		treasury := s.treasuryAccount(tx, tokenID)
		rows := make([]*model.TokenTransfer, 0, len(unique))
		for _, r := range unique {
			rows = append(rows, model.NewTokenTransfer(tokenID, r, treasury, now))
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_id"}, {Name: "transaction_id"}},
			DoNothing: true,
		}).CreateInBatches(rows, dbBatchSize)
		written = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, apperr.Persistence("save transactions", err)
	}
	return int(written), nil
}

func (s *DBStore) LoadTransfers(ctx context.Context, tokenID string) ([]model.TransferRecord, error) {
	var rows []model.TokenTransfer
	if err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).Order("transfer_time DESC").Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("load transactions", err)
	}
	if len(rows) == 0 {
		// 分析过但窗口内没有转账时返回空表
		var analyzed int64
		if err := s.db.WithContext(ctx).Model(&model.Token{}).Where("token_id = ?", tokenID).Count(&analyzed).Error; err != nil {
			return nil, apperr.Persistence("load transactions", err)
		}
		if analyzed == 0 {
			return nil, apperr.NotFound(tokenID)
		}
	}
	records := make([]model.TransferRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].Record())
	}
	return records, nil
}

func (s *DBStore) LatestTransferTime(ctx context.Context, tokenID string) (time.Time, bool, error) {
	var latest model.TokenTransfer
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).Order("transfer_time DESC").Take(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, apperr.Persistence("latest transaction", err)
	}
	return latest.TransferTime, true, nil
}

// DeleteTransfersBefore 删除所有代币中早于 cutoff 的转账，返回删除行数
func (s *DBStore) DeleteTransfersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("transfer_time < ?", cutoff).Delete(&model.TokenTransfer{})
	if res.Error != nil {
		return 0, apperr.Persistence("delete old transactions", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
