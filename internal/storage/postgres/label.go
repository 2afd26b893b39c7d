package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"webmail/backend/internal/domain"
)

type labelRecord struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Name   string `gorm:"type:varchar(100);not null"`
	UserID string `gorm:"type:varchar(255);index;not null"`
}

func (labelRecord) TableName() string { return "labels" }

// labelMailRecord 标签与邮件的多对多关系，不设外键，邮件删除后引用保留
type labelMailRecord struct {
	LabelID   int64 `gorm:"primaryKey"`
	MailID    int64 `gorm:"primaryKey;index"`
	CreatedAt time.Time
}

func (labelMailRecord) TableName() string { return "label_mails" }

func (r *labelRecord) label(mails []int64) *domain.Label {
	if mails == nil {
		mails = []int64{}
	}
	return &domain.Label{ID: r.ID, Name: r.Name, UserID: r.UserID, Mails: mails}
}

// CreateLabel 创建标签
func (s *Store) CreateLabel(ctx context.Context, label *domain.Label) error {
	rec := &labelRecord{Name: label.Name, UserID: label.UserID}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return err
	}
	label.ID = rec.ID
	if label.Mails == nil {
		label.Mails = []int64{}
	}
	return nil
}

// GetLabel 获取标签及其邮件 ID（不检查归属，由服务层负责）
func (s *Store) GetLabel(ctx context.Context, id int64) (*domain.Label, error) {
	return s.getLabel(s.db.WithContext(ctx), id)
}

func (s *Store) getLabel(tx *gorm.DB, id int64) (*domain.Label, error) {
	var rec labelRecord
	if err := tx.First(&rec, id).Error; err != nil {
		return nil, notFound(err)
	}
	var mails []int64
	err := tx.Model(&labelMailRecord{}).
		Where("label_id = ?", id).
		Order("created_at ASC, mail_id ASC").
		Pluck("mail_id", &mails).Error
	if err != nil {
		return nil, err
	}
	return rec.label(mails), nil
}

// ListLabels 列出用户的所有标签，按 ID 升序
func (s *Store) ListLabels(ctx context.Context, userID string) ([]domain.Label, error) {
	db := s.db.WithContext(ctx)

	var recs []labelRecord
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []domain.Label{}, nil
	}

	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	var links []labelMailRecord
	err := db.Where("label_id IN ?", ids).Order("created_at ASC, mail_id ASC").Find(&links).Error
	if err != nil {
		return nil, err
	}
	byLabel := make(map[int64][]int64, len(recs))
	for _, l := range links {
		byLabel[l.LabelID] = append(byLabel[l.LabelID], l.MailID)
	}

	labels := make([]domain.Label, 0, len(recs))
	for i := range recs {
		labels = append(labels, *recs[i].label(byLabel[recs[i].ID]))
	}
	return labels, nil
}

// UpdateLabel 更新标签名称
func (s *Store) UpdateLabel(ctx context.Context, label *domain.Label) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec labelRecord
		if err := tx.First(&rec, label.ID).Error; err != nil {
			return notFound(err)
		}
		return tx.Model(&rec).Update("name", label.Name).Error
	})
}

// DeleteLabel 删除标签及其关联，返回被删除的实体
func (s *Store) DeleteLabel(ctx context.Context, id int64) (*domain.Label, error) {
	var removed *domain.Label
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		label, err := s.getLabel(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Where("label_id = ?", id).Delete(&labelMailRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&labelRecord{}, id).Error; err != nil {
			return err
		}
		removed = label
		return nil
	})
	return removed, err
}

// AttachMail 为标签添加邮件，已存在时不报错
func (s *Store) AttachMail(ctx context.Context, labelID, mailID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var label labelRecord
		if err := tx.First(&label, labelID).Error; err != nil {
			return notFound(err)
		}
		var mail mailRecord
		if err := tx.Where("id = ? AND is_draft = ?", mailID, false).First(&mail).Error; err != nil {
			return notFound(err)
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&labelMailRecord{LabelID: labelID, MailID: mailID}).Error
	})
}

// DetachMail 从标签移除邮件
func (s *Store) DetachMail(ctx context.Context, labelID, mailID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var label labelRecord
		if err := tx.First(&label, labelID).Error; err != nil {
			return notFound(err)
		}
		return tx.Where("label_id = ? AND mail_id = ?", labelID, mailID).Delete(&labelMailRecord{}).Error
	})
}
