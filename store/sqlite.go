package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orchio-ai/orchio/plan"
)

// planRecord 计划的存储行：完整计划作为 JSON 存储，列只承载查询键。
type planRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255;index"`
	Goal      string
	Payload   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (planRecord) TableName() string { return "workflow_plans" }

// SQLiteRepository GORM + SQLite 仓储
type SQLiteRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteRepository 打开数据库并迁移计划表
func NewSQLiteRepository(dsn string, logger *zap.Logger) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&planRecord{}); err != nil {
		return nil, fmt.Errorf("migrate workflow_plans: %w", err)
	}
	return &SQLiteRepository{
		db:     db,
		logger: logger.With(zap.String("component", "plan_store")),
	}, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, p *plan.WorkflowPlan) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("plan with an id is required")
	}
	payload, err := p.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize plan %s: %w", p.ID, err)
	}
	record := planRecord{ID: p.ID, Name: p.Name, Goal: p.Goal, Payload: payload}
	return r.db.WithContext(ctx).Save(&record).Error
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*plan.WorkflowPlan, error) {
	var record planRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return plan.PlanFromJSON([]byte(record.Payload))
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*plan.WorkflowPlan, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *SQLiteRepository) FindAll(ctx context.Context) ([]*plan.WorkflowPlan, error) {
	var records []planRecord
	if err := r.db.WithContext(ctx).Order("created_at").Find(&records).Error; err != nil {
		return nil, err
	}
	plans := make([]*plan.WorkflowPlan, 0, len(records))
	for _, record := range records {
		p, err := plan.PlanFromJSON([]byte(record.Payload))
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", record.ID, err)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&planRecord{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&planRecord{}, "id = ?", id).Error
}

func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
