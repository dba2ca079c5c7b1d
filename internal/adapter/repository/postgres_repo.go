package repository

import (
	"context"
	"fmt"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgresRepo 实现了 port.Repository 接口
type PostgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	if dsn == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "DATABASE_DSN 未设置")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "连接数据库失败", err)
	}

	// 自动创建 digest_runs / paper_entries 表
	if err := db.AutoMigrate(&domain.DigestRun{}, &domain.PaperEntry{}); err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "数据库迁移失败", err)
	}

	return &PostgresRepo{db: db}, nil
}

// SaveRun 保存或更新一次运行记录
func (r *PostgresRepo) SaveRun(ctx context.Context, run *domain.DigestRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return common.WrapError(common.ErrCodeDatabase, "保存运行记录失败: "+run.ID, err)
	}
	return nil
}

// SaveEntries 批量 upsert 论文记录，已存在的论文以最新一次的评分为准
func (r *PostgresRepo) SaveEntries(ctx context.Context, entries []*domain.PaperEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"run_id", "title", "authors", "abstract", "subjects", "main_page",
				"score", "scored", "reason", "summary_en", "summary_ja", "updated_at",
			}),
		}).
		Create(&entries).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, fmt.Sprintf("保存 %d 条论文记录失败", len(entries)), err)
	}
	return nil
}

// Exists 检查论文是否已经推送过
func (r *PostgresRepo) Exists(ctx context.Context, paperID string) (bool, error) {
	var count int64
	// SELECT count(*) FROM paper_entries WHERE id = ? AND already_notified = true
	err := r.db.WithContext(ctx).Model(&domain.PaperEntry{}).
		Where("id = ? AND already_notified = ?", paperID, true).
		Count(&count).Error
	if err != nil {
		return false, common.WrapError(common.ErrCodeDatabase, "查询论文失败: "+paperID, err)
	}
	return count > 0, nil
}

// MarkAsNotified 标记论文为已推送
func (r *PostgresRepo) MarkAsNotified(ctx context.Context, paperIDs []string) error {
	if len(paperIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&domain.PaperEntry{}).
		Where("id IN ?", paperIDs).
		Update("already_notified", true).Error
	if err != nil {
		return common.WrapError(common.ErrCodeDatabase, "标记已推送失败", err)
	}
	return nil
}

// RecentEntries 最近保存的论文，按评分从高到低
func (r *PostgresRepo) RecentEntries(ctx context.Context, limit int) ([]*domain.PaperEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*domain.PaperEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("score DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, common.WrapError(common.ErrCodeDatabase, "查询最近论文失败", err)
	}
	return entries, nil
}

// Close 关闭底层连接池
func (r *PostgresRepo) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
