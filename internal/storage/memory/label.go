package memory

import (
	"context"
	"slices"

	"webmail/backend/internal/domain"
)

// CreateLabel 创建标签
func (s *Store) CreateLabel(_ context.Context, label *domain.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLabelID++
	label.ID = s.nextLabelID
	if label.Mails == nil {
		label.Mails = []int64{}
	}
	s.labels[label.ID] = label.Clone()

	// 按用户索引
	if s.labelsByUser[label.UserID] == nil {
		s.labelsByUser[label.UserID] = make(map[int64]struct{})
	}
	s.labelsByUser[label.UserID][label.ID] = struct{}{}

	return nil
}

// GetLabel 获取标签（不检查归属，由服务层负责）
func (s *Store) GetLabel(_ context.Context, id int64) (*domain.Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	label, ok := s.labels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return label.Clone(), nil
}

// ListLabels 列出用户的所有标签，按 ID 升序
func (s *Store) ListLabels(_ context.Context, userID string) ([]domain.Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.labelsByUser[userID]))
	for id := range s.labelsByUser[userID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	result := make([]domain.Label, 0, len(ids))
	for _, id := range ids {
		result = append(result, *s.labels[id].Clone())
	}
	return result, nil
}

// UpdateLabel 更新标签名称
func (s *Store) UpdateLabel(_ context.Context, label *domain.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.labels[label.ID]
	if !ok {
		return domain.ErrNotFound
	}
	existing.Name = label.Name
	return nil
}

// DeleteLabel 删除标签并返回被删除的实体，不影响其引用的邮件
func (s *Store) DeleteLabel(_ context.Context, id int64) (*domain.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok := s.labels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(s.labels, id)
	delete(s.labelsByUser[label.UserID], id)
	return label, nil
}

// AttachMail 为标签添加邮件，已存在时不报错
func (s *Store) AttachMail(_ context.Context, labelID, mailID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok := s.labels[labelID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, ok := s.mails[mailID]; !ok {
		return domain.ErrNotFound
	}
	if !label.HasMail(mailID) {
		label.Mails = append(label.Mails, mailID)
	}
	return nil
}

// DetachMail 从标签移除邮件
func (s *Store) DetachMail(_ context.Context, labelID, mailID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, ok := s.labels[labelID]
	if !ok {
		return domain.ErrNotFound
	}
	label.Mails = slices.DeleteFunc(label.Mails, func(id int64) bool { return id == mailID })
	return nil
}
