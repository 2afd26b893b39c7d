package domain

import (
	"strings"
	"time"
)

// Mail 表示一封已发送的邮件。
//
// 发件人与收件人共享同一条记录，两个删除标记互相独立：
// 任一方删除只影响自己的视图。双方都删除后记录仍然保留，ID 不会被复用。
type Mail struct {
	ID                 int64     `json:"id"`
	From               string    `json:"from"`
	To                 string    `json:"to"`
	Subject            string    `json:"subject"`
	Body               string    `json:"body"`
	Timestamp          time.Time `json:"timestamp"`
	DeletedForSender   bool      `json:"-"`
	DeletedForReceiver bool      `json:"-"`
}

// VisibleTo 判断邮件对指定用户是否可见
func (m *Mail) VisibleTo(user string) bool {
	if user == "" {
		return false
	}
	return (m.To == user && !m.DeletedForReceiver) || (m.From == user && !m.DeletedForSender)
}

// Involves 判断用户是否为邮件的发件人或收件人（不考虑删除标记）
func (m *Mail) Involves(user string) bool {
	return user != "" && (m.From == user || m.To == user)
}

// FullyDeleted 双方都已删除
func (m *Mail) FullyDeleted() bool {
	return m.DeletedForSender && m.DeletedForReceiver
}

// Matches 对主题或正文做大小写不敏感的子串匹配
func (m *Mail) Matches(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(m.Subject), q) ||
		strings.Contains(strings.ToLower(m.Body), q)
}

// Draft 草稿，只属于创建者（From）。
type Draft struct {
	ID        int64     `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ToMail 将草稿转换为同 ID 的已发送邮件
func (d *Draft) ToMail(sentAt time.Time) *Mail {
	return &Mail{
		ID:        d.ID,
		From:      d.From,
		To:        d.To,
		Subject:   d.Subject,
		Body:      d.Body,
		Timestamp: sentAt,
	}
}

// DraftPatch 草稿更新内容，nil 字段表示不修改
type DraftPatch struct {
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
	To      *string `json:"to" binding:"omitempty,email"`
	Send    bool    `json:"send"`
}

// Apply 将补丁应用到草稿副本上
func (p DraftPatch) Apply(d Draft) Draft {
	if p.Subject != nil {
		d.Subject = *p.Subject
	}
	if p.Body != nil {
		d.Body = *p.Body
	}
	if p.To != nil {
		d.To = *p.To
	}
	return d
}

// ChangedTexts 返回补丁中需要过黑名单检查的文本字段
func (p DraftPatch) ChangedTexts() []string {
	texts := make([]string, 0, 2)
	if p.Subject != nil {
		texts = append(texts, *p.Subject)
	}
	if p.Body != nil {
		texts = append(texts, *p.Body)
	}
	return texts
}

// Verdict 单个 URL 的黑名单判定结果，只在一次检查过程中存在，不缓存
type Verdict struct {
	URL         string `json:"url"`
	Blacklisted bool   `json:"blacklisted"`
}
