package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"webmail/backend/internal/config"
	"webmail/backend/internal/domain"
)

// mailRecord 邮件与草稿共用一张表，共享主键序列；发送草稿只需把 is_draft 置为 false
type mailRecord struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement"`
	Sender             string    `gorm:"type:varchar(255);index;not null"`
	Recipient          string    `gorm:"type:varchar(255);index"`
	Subject            string    `gorm:"type:text"`
	Body               string    `gorm:"type:text"`
	Timestamp          time.Time `gorm:"index"`
	IsDraft            bool      `gorm:"index;not null"`
	DeletedForSender   bool      `gorm:"not null;default:false"`
	DeletedForReceiver bool      `gorm:"not null;default:false"`
}

func (mailRecord) TableName() string { return "mails" }

func mailToRecord(m *domain.Mail) *mailRecord {
	return &mailRecord{
		ID:                 m.ID,
		Sender:             m.From,
		Recipient:          m.To,
		Subject:            m.Subject,
		Body:               m.Body,
		Timestamp:          m.Timestamp,
		DeletedForSender:   m.DeletedForSender,
		DeletedForReceiver: m.DeletedForReceiver,
	}
}

func draftToRecord(d *domain.Draft) *mailRecord {
	return &mailRecord{
		ID:        d.ID,
		Sender:    d.From,
		Recipient: d.To,
		Subject:   d.Subject,
		Body:      d.Body,
		Timestamp: d.Timestamp,
		IsDraft:   true,
	}
}

func (r *mailRecord) mail() domain.Mail {
	return domain.Mail{
		ID:                 r.ID,
		From:               r.Sender,
		To:                 r.Recipient,
		Subject:            r.Subject,
		Body:               r.Body,
		Timestamp:          r.Timestamp.UTC(),
		DeletedForSender:   r.DeletedForSender,
		DeletedForReceiver: r.DeletedForReceiver,
	}
}

func (r *mailRecord) draft() domain.Draft {
	return domain.Draft{
		ID:        r.ID,
		From:      r.Sender,
		To:        r.Recipient,
		Subject:   r.Subject,
		Body:      r.Body,
		Timestamp: r.Timestamp.UTC(),
	}
}

// Store 基于 GORM 的持久化存储，支持 PostgreSQL 与 MySQL
type Store struct {
	db *gorm.DB
}

// Open 根据配置的数据库类型创建存储实例
func Open(cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Type {
	case "postgres":
		return NewStoreWithDialector(postgres.Open(cfg.DSN), cfg)
	case "mysql":
		return NewStoreWithDialector(mysql.Open(cfg.DSN), cfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例并迁移表结构
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	store, err := openStore(dialector, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func openStore(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Store{db: db}, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&mailRecord{},
		&labelRecord{},
		&labelMailRecord{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// ========== Mail Repository ==========

// SaveMail 保存邮件，ID 为 0 时由数据库分配
func (s *Store) SaveMail(ctx context.Context, mail *domain.Mail) error {
	rec := mailToRecord(mail)
	if rec.ID == 0 {
		if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
			return err
		}
		mail.ID = rec.ID
		return nil
	}
	return s.db.WithContext(ctx).Save(rec).Error
}

// GetMail 获取已发送邮件
func (s *Store) GetMail(ctx context.Context, id int64) (*domain.Mail, error) {
	var rec mailRecord
	err := s.db.WithContext(ctx).Where("id = ? AND is_draft = ?", id, false).First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	mail := rec.mail()
	return &mail, nil
}

// ListMailsFor 返回用户作为发件人或收件人的所有邮件，按 ID 升序
func (s *Store) ListMailsFor(ctx context.Context, user string) ([]domain.Mail, error) {
	var recs []mailRecord
	err := s.db.WithContext(ctx).
		Where("is_draft = ? AND (sender = ? OR recipient = ?)", false, user, user).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	mails := make([]domain.Mail, 0, len(recs))
	for i := range recs {
		mails = append(mails, recs[i].mail())
	}
	return mails, nil
}

// UpdateMail 更新已发送邮件
func (s *Store) UpdateMail(ctx context.Context, mail *domain.Mail) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing mailRecord
		if err := tx.Where("id = ? AND is_draft = ?", mail.ID, false).First(&existing).Error; err != nil {
			return notFound(err)
		}
		return tx.Save(mailToRecord(mail)).Error
	})
}

// ========== Draft Repository ==========

// SaveDraft 保存草稿，ID 为 0 时由数据库分配
func (s *Store) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	rec := draftToRecord(draft)
	if rec.ID == 0 {
		if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
			return err
		}
		draft.ID = rec.ID
		return nil
	}
	return s.db.WithContext(ctx).Save(rec).Error
}

// GetDraft 获取草稿
func (s *Store) GetDraft(ctx context.Context, id int64) (*domain.Draft, error) {
	var rec mailRecord
	err := s.db.WithContext(ctx).Where("id = ? AND is_draft = ?", id, true).First(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	draft := rec.draft()
	return &draft, nil
}

// ListDrafts 返回指定用户的全部草稿
func (s *Store) ListDrafts(ctx context.Context, owner string) ([]domain.Draft, error) {
	var recs []mailRecord
	err := s.db.WithContext(ctx).
		Where("is_draft = ? AND sender = ?", true, owner).
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	drafts := make([]domain.Draft, 0, len(recs))
	for i := range recs {
		drafts = append(drafts, recs[i].draft())
	}
	return drafts, nil
}

// UpdateDraft 更新草稿
func (s *Store) UpdateDraft(ctx context.Context, draft *domain.Draft) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing mailRecord
		if err := tx.Where("id = ? AND is_draft = ?", draft.ID, true).First(&existing).Error; err != nil {
			return notFound(err)
		}
		return tx.Save(draftToRecord(draft)).Error
	})
}

// DeleteDraft 删除草稿
func (s *Store) DeleteDraft(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Where("id = ? AND is_draft = ?", id, true).Delete(&mailRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SendDraft 在一条 UPDATE 中写入草稿的最终内容并将其转为邮件。
// 草稿行与邮件行是同一行，因此不存在两者同时可见的中间状态。
func (s *Store) SendDraft(ctx context.Context, draft *domain.Draft, sentAt time.Time) (*domain.Mail, error) {
	var sent mailRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&mailRecord{}).
			Where("id = ? AND is_draft = ?", draft.ID, true).
			Updates(map[string]any{
				"sender":               draft.From,
				"recipient":            draft.To,
				"subject":              draft.Subject,
				"body":                 draft.Body,
				"timestamp":            sentAt,
				"is_draft":             false,
				"deleted_for_sender":   false,
				"deleted_for_receiver": false,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if result.RowsAffected > 1 {
			return fmt.Errorf("%w: %d rows updated for id %d", domain.ErrStoreInconsistency, result.RowsAffected, draft.ID)
		}
		return tx.Where("id = ?", draft.ID).First(&sent).Error
	})
	if err != nil {
		return nil, err
	}
	mail := sent.mail()
	return &mail, nil
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
