package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"multibot/internal/trade"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TradeRecord is one closed trade as persisted for reporting. The raw
// terminal contract payload is kept alongside the normalized columns so
// discrepancies can be audited later.
type TradeRecord struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ContractID int64          `gorm:"uniqueIndex" json:"contract_id"`
	Symbol     string         `json:"symbol"`
	Direction  string         `json:"direction"`
	Multiplier int            `json:"multiplier"`
	Stake      float64        `json:"stake"`
	EntryPrice float64        `json:"entry_price"`
	Status     string         `json:"status"`
	ExitKind   string         `json:"exit_kind"`
	PnL        float64        `gorm:"column:pnl" json:"pnl"`
	Refund     float64        `json:"refund"`
	Forced     bool           `json:"forced"`
	OpenedAt   time.Time      `json:"opened_at"`
	ClosedAt   time.Time      `json:"closed_at"`
	Raw        datatypes.JSON `json:"raw,omitempty"`
}

// Summary aggregates the persisted history.
type Summary struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
}

// Store persists closed trades to sqlite. It is a reporting sink: the
// trading core writes records out and never reads them back on the hot
// path.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewFromDB(db)
}

func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&TradeRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// SaveResult converts a terminal trade result into a record and persists
// it. Saving the same contract twice updates the existing row.
func (s *Store) SaveResult(ctx context.Context, res *trade.Result, symbol, exitKind string) error {
	if res == nil || res.Trade == nil {
		return fmt.Errorf("nil trade result")
	}
	raw, err := json.Marshal(res.Final)
	if err != nil {
		raw = nil
	}
	rec := TradeRecord{
		ContractID: res.Trade.ContractID,
		Symbol:     symbol,
		Direction:  string(res.Trade.Direction),
		Multiplier: res.Trade.Multiplier,
		Stake:      res.Trade.Stake,
		EntryPrice: res.Trade.EntryPrice,
		Status:     string(res.Status),
		ExitKind:   exitKind,
		PnL:        res.PnL,
		Refund:     res.Refund,
		Forced:     res.Forced,
		OpenedAt:   res.Trade.OpenedAt,
		ClosedAt:   res.ClosedAt,
		Raw:        raw,
	}
	var existing TradeRecord
	err = s.db.WithContext(ctx).Where("contract_id = ?", rec.ContractID).First(&existing).Error
	if err == nil {
		rec.ID = existing.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Recent lists the most recently closed trades.
func (s *Store) Recent(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []TradeRecord
	err := s.db.WithContext(ctx).
		Order("closed_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Aggregate returns lifetime totals over the persisted history.
func (s *Store) Aggregate(ctx context.Context) (Summary, error) {
	var sum Summary
	row := s.db.WithContext(ctx).Model(&TradeRecord{}).
		Select("COUNT(*) as trades, " +
			"COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0) as wins, " +
			"COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0) as losses, " +
			"COALESCE(SUM(pnl), 0) as total_pnl").
		Row()
	if err := row.Scan(&sum.Trades, &sum.Wins, &sum.Losses, &sum.TotalPnL); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
