package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"webmail/backend/internal/domain"
)

// Store 使用内存保存邮件、草稿、标签与用户数据，用于开发和测试。
//
// 邮件与草稿共用 nextID，保证两个集合的 ID 永不冲突。
type Store struct {
	mu sync.RWMutex

	nextID int64
	mails  map[int64]*domain.Mail  // 已发送邮件（含双方都已删除的记录）
	drafts map[int64]*domain.Draft // 草稿

	nextLabelID  int64
	labels       map[int64]*domain.Label
	labelsByUser map[string]map[int64]struct{} // userID -> labelIDs

	users      map[string]*domain.User // userID -> user
	byEmail    map[string]string       // email -> userID
	byUsername map[string]string       // username -> userID

	revoked map[string]time.Time // jti -> 过期时间
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mails:        make(map[int64]*domain.Mail),
		drafts:       make(map[int64]*domain.Draft),
		labels:       make(map[int64]*domain.Label),
		labelsByUser: make(map[string]map[int64]struct{}),
		users:        make(map[string]*domain.User),
		byEmail:      make(map[string]string),
		byUsername:   make(map[string]string),
		revoked:      make(map[string]time.Time),
	}
}

// allocIDLocked 分配下一个邮件/草稿 ID，调用方需持有写锁
func (s *Store) allocIDLocked() int64 {
	s.nextID++
	return s.nextID
}

// ========== Mail Repository ==========

// SaveMail 保存邮件，ID 为 0 时分配新 ID。
func (s *Store) SaveMail(_ context.Context, mail *domain.Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mail.ID == 0 {
		mail.ID = s.allocIDLocked()
	} else if mail.ID > s.nextID {
		s.nextID = mail.ID
	}
	cp := *mail
	s.mails[mail.ID] = &cp
	return nil
}

// GetMail 根据 ID 获取邮件（不做可见性过滤）。
func (s *Store) GetMail(_ context.Context, id int64) (*domain.Mail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mail, ok := s.mails[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *mail
	return &cp, nil
}

// ListMailsFor 返回用户作为发件人或收件人的所有邮件快照，按 ID 升序。
func (s *Store) ListMailsFor(_ context.Context, user string) ([]domain.Mail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mail, 0)
	for _, mail := range s.mails {
		if mail.Involves(user) {
			result = append(result, *mail)
		}
	}
	slices.SortFunc(result, func(a, b domain.Mail) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

// UpdateMail 更新已存在的邮件。
func (s *Store) UpdateMail(_ context.Context, mail *domain.Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mails[mail.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *mail
	s.mails[mail.ID] = &cp
	return nil
}

// ========== Draft Repository ==========

// SaveDraft 保存草稿，ID 为 0 时从共享序列分配新 ID。
func (s *Store) SaveDraft(_ context.Context, draft *domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ID == 0 {
		draft.ID = s.allocIDLocked()
	}
	cp := *draft
	s.drafts[draft.ID] = &cp
	return nil
}

// GetDraft 根据 ID 获取草稿。
func (s *Store) GetDraft(_ context.Context, id int64) (*domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draft, ok := s.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *draft
	return &cp, nil
}

// ListDrafts 返回指定用户的全部草稿。
func (s *Store) ListDrafts(_ context.Context, owner string) ([]domain.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Draft, 0)
	for _, draft := range s.drafts {
		if draft.From == owner {
			result = append(result, *draft)
		}
	}
	slices.SortFunc(result, func(a, b domain.Draft) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

// UpdateDraft 更新已存在的草稿。
func (s *Store) UpdateDraft(_ context.Context, draft *domain.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[draft.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *draft
	s.drafts[draft.ID] = &cp
	return nil
}

// DeleteDraft 删除草稿（丢弃）。
func (s *Store) DeleteDraft(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.drafts, id)
	return nil
}

// SendDraft 在同一把写锁内写入邮件并移除草稿，外部不会观察到两者同时存在。
func (s *Store) SendDraft(_ context.Context, draft *domain.Draft, sentAt time.Time) (*domain.Mail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[draft.ID]; !ok {
		return nil, domain.ErrNotFound
	}
	if _, ok := s.mails[draft.ID]; ok {
		// 同 ID 的邮件已存在说明之前的发送没有清理草稿
		return nil, domain.ErrStoreInconsistency
	}

	mail := draft.ToMail(sentAt)
	s.mails[mail.ID] = mail
	delete(s.drafts, draft.ID)

	cp := *mail
	return &cp, nil
}

// ========== 工具方法 ==========

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

// Health 内存存储总是健康
func (s *Store) Health() error {
	return nil
}
