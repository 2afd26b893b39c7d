package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/storage"
)

// DefaultListLimit GetAll 默认返回的最大邮件数
const DefaultListLimit = 50

// MailStore 邮件与草稿的存储，两者共用 ID 序列
type MailStore interface {
	storage.MailRepository
	storage.DraftRepository
}

// Notifier 新邮件通知（可选）
type Notifier interface {
	NotifyNewMail(mail *domain.Mail)
}

// MailService 封装邮件与草稿的生命周期。
//
// 所有写入主题或正文的操作都先经过 DeliveryGate，闸门未放行时存储保持不变。
// 同一 ID 上的修改通过 keyedMutex 串行执行。
type MailService struct {
	store     MailStore
	gate      *DeliveryGate
	users     storage.UserRepository // 收件人目录（可选）
	notifier  Notifier
	locks     *keyedMutex
	listLimit int
	now       func() time.Time
	log       *zap.Logger
	metrics   *monitoring.Metrics
}

// NewMailService 创建邮件服务
func NewMailService(store MailStore, gate *DeliveryGate, log *zap.Logger) *MailService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MailService{
		store:     store,
		gate:      gate,
		locks:     newKeyedMutex(),
		listLimit: DefaultListLimit,
		now:       storeNow,
		log:       log.Named("mail"),
	}
}

// SetDirectory 设置收件人目录，设置后发往未注册地址的邮件会被拒绝
func (s *MailService) SetDirectory(users storage.UserRepository) {
	s.users = users
}

// SetNotifier 设置新邮件通知
func (s *MailService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetMetrics 设置监控指标
func (s *MailService) SetMetrics(m *monitoring.Metrics) {
	s.metrics = m
}

// SetListLimit 设置 GetAll 返回的最大邮件数，<=0 时使用默认值
func (s *MailService) SetListLimit(limit int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.listLimit = limit
}

// CreateMail 发送一封新邮件
//
// 参数:
//   - from: 发件人（调用者）
//   - to: 收件人
//   - subject, body: 主题与正文，其中的 URL 会经过黑名单检查
//
// 返回值:
//   - *domain.Mail: 已保存的邮件
//   - error: ErrValidation / ErrGateRejected / ErrGateUnavailable 或存储错误
func (s *MailService) CreateMail(ctx context.Context, from, to, subject, body string) (*domain.Mail, error) {
	to, err := s.checkRecipient(ctx, to)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Gate(ctx, subject, body).Err(); err != nil {
		return nil, err
	}

	mail := &domain.Mail{
		From:      from,
		To:        to,
		Subject:   subject,
		Body:      body,
		Timestamp: s.now(),
	}
	if err := s.store.SaveMail(ctx, mail); err != nil {
		return nil, fmt.Errorf("save mail: %w", err)
	}

	s.log.Info("mail sent", zap.Int64("id", mail.ID), zap.String("from", from), zap.String("to", to))
	s.metrics.RecordMailSent()
	s.notify(mail)
	return mail, nil
}

// CreateDraft 新建草稿，不经过闸门
func (s *MailService) CreateDraft(ctx context.Context, from, to, subject, body string) (*domain.Draft, error) {
	draft := &domain.Draft{
		From:      from,
		To:        normalizeAddress(to),
		Subject:   subject,
		Body:      body,
		Timestamp: s.now(),
	}
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("save draft: %w", err)
	}
	s.log.Debug("draft created", zap.Int64("id", draft.ID), zap.String("from", from))
	return draft, nil
}

// UpdateDraft 修改草稿，patch.Send 为 true 时将其发送。
//
// 修改主题或正文时，即使不发送也会先经过闸门。发送时对最终的主题和正文再做一次
// 检查，然后以同一 ID 转为邮件并移除草稿。闸门未放行时草稿保持不变。
//
// 返回值:
//   - *domain.Mail: 发送成功时的邮件，否则为 nil
//   - *domain.Draft: 未发送时更新后的草稿，否则为 nil
//   - error: ErrNotFound（草稿不存在或不属于 from）、闸门错误、ErrStoreInconsistency
func (s *MailService) UpdateDraft(ctx context.Context, from string, id int64, patch domain.DraftPatch) (*domain.Mail, *domain.Draft, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	draft, err := s.ownedDraft(ctx, from, id)
	if err != nil {
		return nil, nil, err
	}
	updated := patch.Apply(*draft)
	updated.To = normalizeAddress(updated.To)

	if !patch.Send {
		if texts := patch.ChangedTexts(); len(texts) > 0 {
			if err := s.gate.Gate(ctx, texts...).Err(); err != nil {
				return nil, nil, err
			}
		}
		updated.Timestamp = s.now()
		if err := s.store.UpdateDraft(ctx, &updated); err != nil {
			return nil, nil, fmt.Errorf("update draft: %w", err)
		}
		return nil, &updated, nil
	}

	mail, err := s.send(ctx, &updated)
	if err != nil {
		return nil, nil, err
	}
	return mail, nil, nil
}

func (s *MailService) send(ctx context.Context, draft *domain.Draft) (*domain.Mail, error) {
	if strings.TrimSpace(draft.To) == "" {
		return nil, fmt.Errorf("%w: draft has no recipient", domain.ErrValidation)
	}
	to, err := s.checkRecipient(ctx, draft.To)
	if err != nil {
		return nil, err
	}
	draft.To = to
	if err := s.gate.Gate(ctx, draft.Subject, draft.Body).Err(); err != nil {
		return nil, err
	}

	mail, err := s.store.SendDraft(ctx, draft, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrStoreInconsistency) {
			s.reportInconsistency(draft.ID, err)
		}
		return nil, fmt.Errorf("send draft: %w", err)
	}

	// 邮件已写入，草稿必须已经不存在
	if _, err := s.store.GetDraft(ctx, draft.ID); !errors.Is(err, domain.ErrNotFound) {
		s.reportInconsistency(draft.ID, err)
		return nil, fmt.Errorf("%w: draft %d", domain.ErrStoreInconsistency, draft.ID)
	}

	s.log.Info("draft sent", zap.Int64("id", mail.ID), zap.String("from", mail.From), zap.String("to", mail.To))
	s.metrics.RecordDraftSent()
	s.notify(mail)
	return mail, nil
}

func (s *MailService) reportInconsistency(id int64, cause error) {
	s.metrics.RecordStoreInconsistency()
	s.log.Error("mail stored but draft not removed", zap.Int64("id", id), zap.Error(cause))
}

// GetAll 返回对用户可见的邮件，按时间倒序，最多 listLimit 封
func (s *MailService) GetAll(ctx context.Context, user string) ([]domain.Mail, error) {
	mails, err := s.visible(ctx, user, "")
	if err != nil {
		return nil, err
	}
	if len(mails) > s.listLimit {
		mails = mails[:s.listLimit]
	}
	return mails, nil
}

// GetByID 获取单封邮件，不存在与不可见都返回 ErrNotFound
func (s *MailService) GetByID(ctx context.Context, user string, id int64) (*domain.Mail, error) {
	mail, err := s.store.GetMail(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mail.VisibleTo(user) {
		return nil, domain.ErrNotFound
	}
	return mail, nil
}

// Search 在主题和正文中做大小写不敏感的子串搜索，只返回对用户可见的邮件
func (s *MailService) Search(ctx context.Context, user, query string) ([]domain.Mail, error) {
	return s.visible(ctx, user, query)
}

func (s *MailService) visible(ctx context.Context, user, query string) ([]domain.Mail, error) {
	all, err := s.store.ListMailsFor(ctx, user)
	if err != nil {
		return nil, err
	}
	mails := make([]domain.Mail, 0, len(all))
	for _, m := range all {
		if m.VisibleTo(user) && (query == "" || m.Matches(query)) {
			mails = append(mails, m)
		}
	}
	slices.SortFunc(mails, func(a, b domain.Mail) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return mails, nil
}

// DeleteMail 从用户自己的视图中删除邮件。
//
// 发件人删除设置 DeletedForSender，收件人删除设置 DeletedForReceiver，
// 另一方的视图不受影响。邮件不存在或用户既不是发件人也不是收件人时返回 false，
// 重复删除返回 true。
func (s *MailService) DeleteMail(ctx context.Context, user string, id int64) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	mail, err := s.store.GetMail(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !mail.Involves(user) {
		return false, nil
	}

	var side string
	switch {
	case mail.From == user && !mail.DeletedForSender:
		mail.DeletedForSender = true
		side = "sender"
	case mail.To == user && !mail.DeletedForReceiver:
		mail.DeletedForReceiver = true
		side = "receiver"
	default:
		// 该用户一侧已全部删除，重复删除视为成功
		return true, nil
	}

	if err := s.store.UpdateMail(ctx, mail); err != nil {
		return false, fmt.Errorf("update mail: %w", err)
	}
	s.log.Info("mail deleted", zap.Int64("id", id), zap.String("side", side), zap.Bool("fully_deleted", mail.FullyDeleted()))
	s.metrics.RecordMailDeleted(side)
	return true, nil
}

// ListDrafts 列出用户的草稿，按时间倒序
func (s *MailService) ListDrafts(ctx context.Context, user string) ([]domain.Draft, error) {
	drafts, err := s.store.ListDrafts(ctx, user)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(drafts, func(a, b domain.Draft) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return drafts, nil
}

// GetDraft 获取用户自己的草稿
func (s *MailService) GetDraft(ctx context.Context, user string, id int64) (*domain.Draft, error) {
	return s.ownedDraft(ctx, user, id)
}

// DeleteDraft 丢弃草稿
func (s *MailService) DeleteDraft(ctx context.Context, user string, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.ownedDraft(ctx, user, id); err != nil {
		return err
	}
	if err := s.store.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.log.Debug("draft discarded", zap.Int64("id", id))
	return nil
}

func (s *MailService) ownedDraft(ctx context.Context, user string, id int64) (*domain.Draft, error) {
	draft, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.From != user {
		return nil, domain.ErrNotFound
	}
	return draft, nil
}

// checkRecipient 校验收件人并返回规范化后的地址。
// 配置了目录时要求收件人已注册，并使用目录中保存的邮箱。
func (s *MailService) checkRecipient(ctx context.Context, to string) (string, error) {
	to = normalizeAddress(to)
	if to == "" {
		return "", fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	}
	if s.users == nil {
		return to, nil
	}
	user, err := s.users.GetUserByEmail(ctx, to)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown recipient %s", domain.ErrValidation, to)
		}
		return "", err
	}
	return normalizeAddress(user.Email), nil
}

// normalizeAddress 邮箱地址统一为小写，与注册时保存的形式一致
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// storeNow 返回截断到毫秒的 UTC 时间。
// MySQL datetime(3) 只保存到毫秒，截断后写入与读回的时间戳相等。
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *MailService) notify(mail *domain.Mail) {
	if s.notifier != nil {
		s.notifier.NotifyNewMail(mail)
	}
}
