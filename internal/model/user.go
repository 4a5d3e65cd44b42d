package model

import "time"

// 用户角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 账号表，对应 users
type User struct {
	UserID           string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Email            string     `gorm:"type:varchar(255);not null"                     json:"email"`
	Name             string     `gorm:"type:varchar(100);not null"                     json:"name"`
	PasswordHash     string     `gorm:"type:varchar(255);not null"                     json:"-"`
	Role             string     `gorm:"type:varchar(20);not null;default:'user'"       json:"role"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// IsConfirmed 邮箱是否已确认
func (u *User) IsConfirmed() bool { return u.EmailConfirmedAt != nil }
