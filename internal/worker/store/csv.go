package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/model"
	"token-analyzer/pkg/utils"
)

var (
	HolderHeader   = []string{"Account", "Balance"}
	TransferHeader = []string{
		"Timestamp",
		"Transaction ID",
		"Sender Account",
		"Total Sent Amount",
		"Receiver Account",
		"Receiver Amount",
		"Token Symbol",
		"Memo",
		"Fee (HBAR)",
	}
)

// CSVStore 每个代币一个目录：<base>/<id>_token_data/{<id>_holders.csv,<id>_transactions.csv,<id>_token.json}
type CSVStore struct {
	baseDir string
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCSVStore(baseDir string, logger *zap.Logger) *CSVStore {
	if baseDir == "" {
		baseDir = "data"
	}
	return &CSVStore{baseDir: baseDir, logger: logger, locks: make(map[string]*sync.Mutex)}
}

func (s *CSVStore) tokenLock(tokenID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tokenID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tokenID] = l
	}
	return l
}

func (s *CSVStore) TokenDir(tokenID string) string {
	return filepath.Join(s.baseDir, utils.EntityDirName(tokenID))
}

func (s *CSVStore) HoldersPath(tokenID string) string {
	return filepath.Join(s.TokenDir(tokenID), tokenID+"_holders.csv")
}

func (s *CSVStore) TransfersPath(tokenID string) string {
	return filepath.Join(s.TokenDir(tokenID), tokenID+"_transactions.csv")
}

func (s *CSVStore) tokenInfoPath(tokenID string) string {
	return filepath.Join(s.TokenDir(tokenID), tokenID+"_token.json")
}

func (s *CSVStore) ensureDir(tokenID string) error {
	return os.MkdirAll(s.TokenDir(tokenID), 0755)
}

func (s *CSVStore) SaveTokenInfo(ctx context.Context, info model.TokenInfo, raw []byte) error {
	l := s.tokenLock(info.TokenID)
	l.Lock()
	defer l.Unlock()

	if err := s.ensureDir(info.TokenID); err != nil {
		return apperr.Persistence("create token dir", err)
	}
	data, err := sonic.Marshal(info)
	if err != nil {
		return apperr.Persistence("encode token info", err)
	}
	if err := os.WriteFile(s.tokenInfoPath(info.TokenID), data, 0644); err != nil {
		return apperr.Persistence("write token info", err)
	}
	return nil
}

func (s *CSVStore) LoadTokenInfo(ctx context.Context, tokenID string) (*model.TokenInfo, error) {
	data, err := os.ReadFile(s.tokenInfoPath(tokenID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound(tokenID)
		}
		return nil, apperr.Persistence("read token info", err)
	}
	var info model.TokenInfo
	if err := sonic.Unmarshal(data, &info); err != nil {
		return nil, apperr.Persistence("decode token info", err)
	}
	return &info, nil
}

// SaveHolders 整表覆盖
func (s *CSVStore) SaveHolders(ctx context.Context, tokenID string, holders []model.Holder) error {
	l := s.tokenLock(tokenID)
	l.Lock()
	defer l.Unlock()

	if err := s.ensureDir(tokenID); err != nil {
		return apperr.Persistence("create token dir", err)
	}
	rows := make([][]string, 0, len(holders))
	for _, h := range holders {
		rows = append(rows, []string{h.Account, h.FormattedBalance.String()})
	}
	if err := writeCSVFile(s.HoldersPath(tokenID), HolderHeader, rows); err != nil {
		return apperr.Persistence("write holders", err)
	}
	s.logger.Info("Saved holders", zap.String("token_id", tokenID), zap.Int("count", len(holders)))
	return nil
}

// LoadHolders 只能恢复格式化余额；treasury 按最大余额重新标记
func (s *CSVStore) LoadHolders(ctx context.Context, tokenID string) ([]model.Holder, error) {
	rows, err := readCSVFile(s.HoldersPath(tokenID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound(tokenID)
		}
		return nil, apperr.Persistence("read holders", err)
	}

	holders := make([]model.Holder, 0, len(rows))
	treasury := -1
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		bal, err := decimal.NewFromString(row[1])
		if err != nil {
			bal = decimal.Zero
		}
		holders = append(holders, model.Holder{Account: row[0], FormattedBalance: bal})
		if treasury < 0 || bal.GreaterThan(holders[treasury].FormattedBalance) {
			treasury = len(holders) - 1
		}
	}
	if treasury >= 0 {
		holders[treasury].IsTreasury = true
	}
	return holders, nil
}

func (s *CSVStore) SaveTransfers(ctx context.Context, tokenID string, records []model.TransferRecord, mode WriteMode) (int, error) {
	l := s.tokenLock(tokenID)
	l.Lock()
	defer l.Unlock()

	if err := s.ensureDir(tokenID); err != nil {
		return 0, apperr.Persistence("create token dir", err)
	}
	path := s.TransfersPath(tokenID)

	if mode == ModeRewrite {
		unique := dedupByTransactionID(records, make(map[string]struct{}, len(records)))
		if err := writeCSVFile(path, TransferHeader, transferRows(unique)); err != nil {
			return 0, apperr.Persistence("write transactions", err)
		}
		return len(unique), nil
	}

	existing, err := readCSVFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, apperr.Persistence("read transactions", err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		if len(row) > 1 {
			seen[row[1]] = struct{}{}
		}
	}
	fresh := dedupByTransactionID(records, seen)

	if errors.Is(err, fs.ErrNotExist) {
		if err := writeCSVFile(path, TransferHeader, transferRows(fresh)); err != nil {
			return 0, apperr.Persistence("write transactions", err)
		}
		return len(fresh), nil
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if err := appendCSVFile(path, transferRows(fresh)); err != nil {
		return 0, apperr.Persistence("append transactions", err)
	}
	return len(fresh), nil
}

func (s *CSVStore) LoadTransfers(ctx context.Context, tokenID string) ([]model.TransferRecord, error) {
	rows, err := readCSVFile(s.TransfersPath(tokenID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound(tokenID)
		}
		return nil, apperr.Persistence("read transactions", err)
	}
	records := make([]model.TransferRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < len(TransferHeader) {
			continue
		}
		records = append(records, model.TransferRecord{
			Timestamp:       row[0],
			TransactionID:   row[1],
			SenderAccount:   row[2],
			SenderAmount:    parseDecimal(row[3]),
			ReceiverAccount: row[4],
			ReceiverAmount:  parseDecimal(row[5]),
			TokenSymbol:     row[6],
			Memo:            row[7],
			FeeHbar:         parseDecimal(row[8]),
		})
	}
	return records, nil
}

func (s *CSVStore) LatestTransferTime(ctx context.Context, tokenID string) (time.Time, bool, error) {
	records, err := s.LoadTransfers(ctx, tokenID)
	if err != nil {
		if errors.Is(err, apperr.ErrDataNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	var latest time.Time
	for _, r := range records {
		if t := r.Time(); t.After(latest) {
			latest = t
		}
	}
	return latest, !latest.IsZero(), nil
}

func (s *CSVStore) Close() error {
	return nil
}

func transferRows(records []model.TransferRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Timestamp,
			r.TransactionID,
			r.SenderAccount,
			r.SenderAmount.String(),
			r.ReceiverAccount,
			r.ReceiverAmount.String(),
			r.TokenSymbol,
			r.Memo,
			r.FeeHbar.String(),
		})
	}
	return rows
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// writeCSVFile 先写临时文件再 rename，避免读到半截文件
func writeCSVFile(path string, header []string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func appendCSVFile(path string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readCSVFile 返回去掉表头的数据行
func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return r.ReadAll()
}
