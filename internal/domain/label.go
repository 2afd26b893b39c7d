package domain

import "slices"

// DefaultLabelName 标签改名为空时使用的名称
const DefaultLabelName = "Untitled"

// DefaultLabels 用户注册时自动创建的标签
var DefaultLabels = []string{"Important", "Starred", "Spam"}

// Label 邮件标签，与邮件是多对多关系。
//
// Mails 只是软引用：邮件被双方删除后不会级联清理。
type Label struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	UserID string  `json:"userId"` // 所属用户标识（邮箱地址）
	Mails  []int64 `json:"mails"`
}

// HasMail 判断标签是否包含某封邮件
func (l *Label) HasMail(mailID int64) bool {
	return slices.Contains(l.Mails, mailID)
}

// Clone 返回深拷贝，避免调用方修改存储内部的切片
func (l *Label) Clone() *Label {
	cp := *l
	cp.Mails = slices.Clone(l.Mails)
	if cp.Mails == nil {
		cp.Mails = []int64{}
	}
	return &cp
}
