// Package journal keeps a local record of coins and dispense attempts in
// SQLite. It survives restarts, so the collected total does too.
package journal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sweeney/vendo/internal/coin"
	"github.com/sweeney/vendo/internal/dispense"
)

// CoinRecord is one resolved coin burst.
type CoinRecord struct {
	ID           uint            `gorm:"primaryKey"`
	At           time.Time       `gorm:"index"`
	Channel      string          `gorm:"size:32"`
	Pulses       int
	Recognized   bool
	Denomination string          `gorm:"size:32"`
	Value        decimal.Decimal `gorm:"type:text"`
}

// SaleRecord is one finished dispense attempt.
type SaleRecord struct {
	ID        uint            `gorm:"primaryKey"`
	AttemptID string          `gorm:"uniqueIndex;size:36"`
	Channel   string          `gorm:"index;size:32"`
	Cost      decimal.Decimal `gorm:"type:text"`
	Outcome   string          `gorm:"size:16"`
	Forced    bool
	Start     time.Time
	End       time.Time `gorm:"index"`
}

// Totals are aggregates over the whole journal.
type Totals struct {
	MoneyCollected decimal.Decimal
	CoinsAccepted  int64
	CoinsRejected  int64
	Dispensed      int64
	Revenue        decimal.Decimal
}

// Journal is the SQLite-backed record.
type Journal struct {
	db *gorm.DB
}

// Open opens (creating if needed) the journal at path. ":memory:" gives a
// throwaway journal.
func Open(path string, log *zap.Logger) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 newGormLogger(log, gormlogger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("journal handle: %w", err)
	}
	// SQLite allows one writer; an in-memory database is per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&CoinRecord{}, &SaleRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// RecordCoin stores a resolved coin.
func (j *Journal) RecordCoin(ev coin.Event) error {
	rec := CoinRecord{
		At:           ev.Time,
		Channel:      ev.Channel,
		Pulses:       ev.Pulses,
		Recognized:   ev.Recognized,
		Denomination: ev.Denomination.Name,
		Value:        ev.Value(),
	}
	if err := j.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("record coin: %w", err)
	}
	return nil
}

// RecordAttempt stores a finished dispense attempt.
func (j *Journal) RecordAttempt(a dispense.Attempt) error {
	rec := SaleRecord{
		AttemptID: a.ID,
		Channel:   a.Channel,
		Cost:      a.Cost,
		Outcome:   string(a.Outcome),
		Forced:    a.Forced,
		Start:     a.Start,
		End:       a.End,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("record attempt %s: %w", a.ID, err)
	}
	return nil
}

// Totals sums the journal. Amounts are stored as text, so they are added
// here rather than in SQL to keep them exact.
func (j *Journal) Totals() (Totals, error) {
	t := Totals{MoneyCollected: decimal.Zero, Revenue: decimal.Zero}

	var coins []decimal.Decimal
	if err := j.db.Model(&CoinRecord{}).Where("recognized = ?", true).Pluck("value", &coins).Error; err != nil {
		return t, fmt.Errorf("sum coins: %w", err)
	}
	for _, v := range coins {
		t.MoneyCollected = t.MoneyCollected.Add(v)
	}
	t.CoinsAccepted = int64(len(coins))

	if err := j.db.Model(&CoinRecord{}).Where("recognized = ?", false).Count(&t.CoinsRejected).Error; err != nil {
		return t, fmt.Errorf("count rejected coins: %w", err)
	}

	var costs []decimal.Decimal
	if err := j.db.Model(&SaleRecord{}).Where("outcome = ?", string(dispense.OutcomeConfirmed)).Pluck("cost", &costs).Error; err != nil {
		return t, fmt.Errorf("sum sales: %w", err)
	}
	for _, c := range costs {
		t.Revenue = t.Revenue.Add(c)
	}
	t.Dispensed = int64(len(costs))
	return t, nil
}

// RecentSales returns the newest attempts first.
func (j *Journal) RecentSales(limit int) ([]SaleRecord, error) {
	var out []SaleRecord
	if err := j.db.Order("id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("recent sales: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
