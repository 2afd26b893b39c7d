package storage

import (
	"context"
	"time"

	"webmail/backend/internal/domain"
)

// MailRepository 定义已发送邮件的数据存取操作。
//
// 邮件与草稿共用同一个 ID 序列。
type MailRepository interface {
	SaveMail(ctx context.Context, mail *domain.Mail) error // ID 为 0 时分配新 ID
	GetMail(ctx context.Context, id int64) (*domain.Mail, error)
	ListMailsFor(ctx context.Context, user string) ([]domain.Mail, error) // 用户为发件人或收件人的全部邮件，不过滤删除标记
	UpdateMail(ctx context.Context, mail *domain.Mail) error
}

// DraftRepository 定义草稿数据存取操作。
type DraftRepository interface {
	SaveDraft(ctx context.Context, draft *domain.Draft) error // ID 为 0 时分配新 ID
	GetDraft(ctx context.Context, id int64) (*domain.Draft, error)
	ListDrafts(ctx context.Context, owner string) ([]domain.Draft, error)
	UpdateDraft(ctx context.Context, draft *domain.Draft) error
	DeleteDraft(ctx context.Context, id int64) error
	// SendDraft 以草稿的最终内容写入同 ID 的邮件并移除草稿，两步在一个原子操作内完成
	SendDraft(ctx context.Context, draft *domain.Draft, sentAt time.Time) (*domain.Mail, error)
}

// LabelRepository 定义标签数据存取操作。
type LabelRepository interface {
	CreateLabel(ctx context.Context, label *domain.Label) error
	GetLabel(ctx context.Context, id int64) (*domain.Label, error)
	ListLabels(ctx context.Context, userID string) ([]domain.Label, error)
	UpdateLabel(ctx context.Context, label *domain.Label) error
	DeleteLabel(ctx context.Context, id int64) (*domain.Label, error)
	AttachMail(ctx context.Context, labelID, mailID int64) error
	DetachMail(ctx context.Context, labelID, mailID int64) error
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// TokenRevoker 定义 JWT 吊销（登出）操作。
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MailRepository
	DraftRepository
	LabelRepository
	UserRepository

	Close() error
	Health() error
}
