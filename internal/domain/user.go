package domain

import "time"

// User 表示注册用户的业务实体
//
// 邮件的 From/To 与标签的 UserID 都使用 Email 作为用户标识。
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Username     string    `json:"username" gorm:"uniqueIndex;type:varchar(100);not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
