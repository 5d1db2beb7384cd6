package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/lessonpipe/internal/database"
)

// TraceRecord 诊断 trace 的数据库行
// 表结构与 internal/migration 中的 diagnostic_traces 迁移保持一致
type TraceRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RunID      string    `gorm:"column:run_id;size:64;not null;uniqueIndex:idx_diagnostic_traces_run_id"`
	Outcome    string    `gorm:"column:outcome;size:32;not null;default:'';index:idx_diagnostic_traces_outcome"`
	EntryCount int       `gorm:"column:entry_count;not null;default:0"`
	StartedAt  time.Time `gorm:"column:started_at"`
	FinishedAt time.Time `gorm:"column:finished_at"`
	Payload    string    `gorm:"column:payload;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName 指定表名
func (TraceRecord) TableName() string {
	return "diagnostic_traces"
}

// gormTxAttempts 死锁重试次数
const gormTxAttempts = 3

// GormStore 通过 GORM 把 trace 写入 SQL 表（postgres / mysql / sqlite）
type GormStore struct {
	pool *database.PoolManager
}

// NewGormStore 创建 SQL 存储；autoMigrate 为 true 时用 GORM 建表，
// 生产环境应使用 lessonpipe migrate 管理表结构
func NewGormStore(pool *database.PoolManager, autoMigrate bool) (*GormStore, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	if autoMigrate {
		if err := pool.DB().AutoMigrate(&TraceRecord{}); err != nil {
			return nil, fmt.Errorf("failed to auto migrate: %w", err)
		}
	}
	return &GormStore{pool: pool}, nil
}

// Name implements Store.
func (s *GormStore) Name() string { return string(StoreTypeGorm) }

// Ping implements Pinger.
func (s *GormStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// PoolStats 返回底层连接池统计
func (s *GormStore) PoolStats() database.PoolStats { return s.pool.GetStats() }

// Save implements Store. Saving the same run id twice overwrites the row.
func (s *GormStore) Save(ctx context.Context, trace *Trace) error {
	if err := ValidateRunID(trace.RunID); err != nil {
		return err
	}
	data, err := gojson.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	rec := &TraceRecord{
		RunID:      trace.RunID,
		Outcome:    trace.Outcome,
		EntryCount: len(trace.Entries),
		StartedAt:  trace.StartedAt,
		FinishedAt: trace.FinishedAt,
		Payload:    string(data),
	}

	return s.pool.WithTransactionRetry(ctx, gormTxAttempts, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"outcome", "entry_count", "started_at", "finished_at", "payload"}),
		}).Create(rec).Error
	})
}

// Load implements Loader.
func (s *GormStore) Load(ctx context.Context, runID string) (*Trace, error) {
	var rec TraceRecord
	err := s.pool.DB().WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trace: %w", err)
	}
	var t Trace
	if err := gojson.Unmarshal([]byte(rec.Payload), &t); err != nil {
		return nil, fmt.Errorf("failed to decode trace %s: %w", runID, err)
	}
	return &t, nil
}

// List implements Lister.
func (s *GormStore) List(ctx context.Context, limit int) ([]string, error) {
	q := s.pool.DB().WithContext(ctx).Model(&TraceRecord{}).Order("started_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []string
	if err := q.Pluck("run_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	return ids, nil
}

// CountByOutcome 按终态统计运行数
func (s *GormStore) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Count   int64
	}
	err := s.pool.DB().WithContext(ctx).Model(&TraceRecord{}).
		Select("outcome, COUNT(*) AS count").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count traces: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Outcome] = r.Count
	}
	return out, nil
}
