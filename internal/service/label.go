package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/storage"
)

// LabelService 标签服务
//
// 所有按 ID 的操作都先校验标签归属，不属于调用者的标签一律视为不存在。
type LabelService struct {
	labels storage.LabelRepository
	mails  storage.MailRepository
	locks  *keyedMutex
	log    *zap.Logger
}

// NewLabelService 创建标签服务
func NewLabelService(labels storage.LabelRepository, mails storage.MailRepository, log *zap.Logger) *LabelService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LabelService{
		labels: labels,
		mails:  mails,
		locks:  newKeyedMutex(),
		log:    log.Named("label"),
	}
}

// CreateLabel 创建标签，名称为空时使用 DefaultLabelName
func (s *LabelService) CreateLabel(ctx context.Context, name, userID string) (*domain.Label, error) {
	label := &domain.Label{
		Name:   normalizeLabelName(name),
		UserID: userID,
		Mails:  []int64{},
	}
	if err := s.labels.CreateLabel(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}

// CreateDefaultLabels 为新用户创建默认标签
func (s *LabelService) CreateDefaultLabels(ctx context.Context, userID string) error {
	for _, name := range domain.DefaultLabels {
		if _, err := s.CreateLabel(ctx, name, userID); err != nil {
			return err
		}
	}
	return nil
}

// GetAllLabels 列出用户的全部标签
func (s *LabelService) GetAllLabels(ctx context.Context, userID string) ([]domain.Label, error) {
	return s.labels.ListLabels(ctx, userID)
}

// GetLabel 获取用户自己的标签
//
// 参数:
//   - id: 标签ID
//   - userID: 调用者
//
// 返回值:
//   - *domain.Label: 标签
//   - error: 标签不存在或不属于调用者时为 ErrNotFound
func (s *LabelService) GetLabel(ctx context.Context, id int64, userID string) (*domain.Label, error) {
	label, err := s.labels.GetLabel(ctx, id)
	if err != nil {
		return nil, err
	}
	if label.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return label, nil
}

// UpdateLabel 重命名标签
func (s *LabelService) UpdateLabel(ctx context.Context, id int64, name, userID string) (*domain.Label, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	label, err := s.GetLabel(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	label.Name = normalizeLabelName(name)
	if err := s.labels.UpdateLabel(ctx, label); err != nil {
		return nil, err
	}
	return label, nil
}

// DeleteLabel 删除标签并返回被删除的实体，标签引用的邮件不受影响
func (s *LabelService) DeleteLabel(ctx context.Context, id int64, userID string) (*domain.Label, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.GetLabel(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.labels.DeleteLabel(ctx, id)
}

// AddMailToLabel 为标签添加邮件。
//
// 邮件必须对标签所有者可见，否则返回 ErrNotFound。重复添加不报错。
func (s *LabelService) AddMailToLabel(ctx context.Context, labelID, mailID int64, userID string) (*domain.Label, error) {
	unlock := s.locks.Lock(labelID)
	defer unlock()

	if _, err := s.GetLabel(ctx, labelID, userID); err != nil {
		return nil, err
	}
	mail, err := s.mails.GetMail(ctx, mailID)
	if err != nil {
		return nil, err
	}
	if !mail.VisibleTo(userID) {
		return nil, domain.ErrNotFound
	}
	if err := s.labels.AttachMail(ctx, labelID, mailID); err != nil {
		return nil, err
	}
	s.log.Debug("mail labelled", zap.Int64("label", labelID), zap.Int64("mail", mailID))
	return s.labels.GetLabel(ctx, labelID)
}

// RemoveMailFromLabel 从标签中移除邮件
func (s *LabelService) RemoveMailFromLabel(ctx context.Context, labelID, mailID int64, userID string) (*domain.Label, error) {
	unlock := s.locks.Lock(labelID)
	defer unlock()

	if _, err := s.GetLabel(ctx, labelID, userID); err != nil {
		return nil, err
	}
	if err := s.labels.DetachMail(ctx, labelID, mailID); err != nil {
		return nil, err
	}
	return s.labels.GetLabel(ctx, labelID)
}

// ListMailsByLabel 列出标签下仍对所有者可见的邮件，已被删除的引用会被跳过
func (s *LabelService) ListMailsByLabel(ctx context.Context, labelID int64, userID string) ([]domain.Mail, error) {
	label, err := s.GetLabel(ctx, labelID, userID)
	if err != nil {
		return nil, err
	}

	mails := make([]domain.Mail, 0, len(label.Mails))
	for _, id := range label.Mails {
		mail, err := s.mails.GetMail(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if mail.VisibleTo(userID) {
			mails = append(mails, *mail)
		}
	}
	return mails, nil
}

func normalizeLabelName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.DefaultLabelName
	}
	return name
}
