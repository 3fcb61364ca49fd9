package model

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User 本地账户（数据库凭据源使用）
type User struct {
	BaseModel
	Username          string              `gorm:"type:varchar(100);uniqueIndex" json:"username"`
	Email             string              `gorm:"type:varchar(255);index" json:"email,omitempty"`
	PasswordHash      string              `gorm:"type:varchar(255)" json:"-"`
	DisplayName       string              `gorm:"type:varchar(100)" json:"display_name,omitempty"`
	Status            string              `gorm:"type:varchar(20);default:active" json:"status"`
	Attributes        map[string][]string `gorm:"serializer:json" json:"attributes,omitempty"`
	AccountExpiresAt  *time.Time          `json:"-"` // 账户有效期，过期返回 AccountExpired
	PasswordExpiresAt *time.Time          `json:"-"` // 密码有效期，过期返回 CredentialExpired
	FailedLoginCount  int                 `gorm:"default:0" json:"-"`
	LockedUntil       *time.Time          `json:"-"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// SetPassword 设置密码（bcrypt 哈希存储）
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// VerifyPassword 验证密码
func (u *User) VerifyPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// IsActive 检查账户是否启用
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// IsAccountExpired 检查账户是否超过有效期
func (u *User) IsAccountExpired() bool {
	return u.AccountExpiresAt != nil && time.Now().After(*u.AccountExpiresAt)
}

// IsPasswordExpired 检查密码是否超过有效期
func (u *User) IsPasswordExpired() bool {
	return u.PasswordExpiresAt != nil && time.Now().After(*u.PasswordExpiresAt)
}

// IsLocked 检查账户是否被锁定
func (u *User) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// IncrementFailedLogin 增加登录失败次数，达到阈值后锁定
func (u *User) IncrementFailedLogin() {
	u.FailedLoginCount++
	if u.FailedLoginCount >= MaxFailedAttempts {
		lockTime := time.Now().Add(LockDuration)
		u.LockedUntil = &lockTime
	}
}

// ResetFailedLogin 重置登录失败次数
func (u *User) ResetFailedLogin() {
	u.FailedLoginCount = 0
	u.LockedUntil = nil
}

// LockDuration 账户锁定时长
const LockDuration = 15 * time.Minute

// MaxFailedAttempts 最大失败尝试次数
const MaxFailedAttempts = 5
