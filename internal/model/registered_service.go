package model

import (
	"regexp"
	"time"
)

// MFA 失败模式
const (
	FailureModeClosed = "closed" // 提供方不可用时拒绝（默认）
	FailureModeOpen   = "open"   // 提供方不可用时放行
)

// RegisteredService 已注册的依赖方服务定义
type RegisteredService struct {
	ID              int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string `gorm:"type:varchar(255)" json:"name"`
	Description     string `gorm:"type:varchar(500)" json:"description,omitempty"`
	ServiceID       string `gorm:"type:varchar(500);not null" json:"service_id"` // 匹配服务 URL 的正则
	EvaluationOrder int    `gorm:"index;default:0" json:"evaluation_order"`

	// 访问策略
	Enabled    bool `gorm:"default:true" json:"enabled"`
	SSOEnabled bool `gorm:"default:true" json:"sso_enabled"`

	// 认证策略：限定可用的认证处理器，空表示不限定
	RequiredHandlers []string `gorm:"serializer:json" json:"required_handlers,omitempty"`

	// 属性释放策略：允许释放给该服务的主体属性，空表示全部
	AllowedAttributes []string `gorm:"serializer:json" json:"allowed_attributes,omitempty"`

	// MFA 策略
	MFAProviders   []string `gorm:"serializer:json" json:"mfa_providers,omitempty"`
	MFAFailureMode string   `gorm:"type:varchar(16);default:closed" json:"mfa_failure_mode,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 编译后的匹配正则缓存
	pattern *regexp.Regexp `gorm:"-" json:"-"`
}

// TableName 指定表名
func (RegisteredService) TableName() string {
	return "registered_services"
}

// CompilePattern 预编译匹配正则并缓存
// 快照构建时调用一次，之后 Matches 只读缓存，可被并发查找安全共享
func (r *RegisteredService) CompilePattern() error {
	if r.ServiceID == "" {
		return nil
	}
	pattern, err := regexp.Compile(r.ServiceID)
	if err != nil {
		return err
	}
	r.pattern = pattern
	return nil
}

// Matches 判断服务 URL 是否匹配该定义（正则匹配，而非字符串相等）
// 未预编译的定义每次现场编译，不回写缓存；非法正则视为永不匹配
func (r *RegisteredService) Matches(serviceURL string) bool {
	if r.ServiceID == "" || serviceURL == "" {
		return false
	}
	pattern := r.pattern
	if pattern == nil {
		compiled, err := regexp.Compile(r.ServiceID)
		if err != nil {
			return false
		}
		pattern = compiled
	}
	return pattern.MatchString(serviceURL)
}

// AccessAllowed 服务是否允许访问
func (r *RegisteredService) AccessAllowed() bool {
	return r.Enabled
}

// SSOParticipant 服务是否参与 SSO（不参与时每次都要求新认证）
func (r *RegisteredService) SSOParticipant() bool {
	return r.SSOEnabled
}

// RequiresMFA 服务是否声明了 MFA 要求
func (r *RegisteredService) RequiresMFA() bool {
	return len(r.MFAProviders) > 0
}

// FailureOpen MFA 提供方不可用时是否放行
func (r *RegisteredService) FailureOpen() bool {
	return r.MFAFailureMode == FailureModeOpen
}

// ReleaseAttributes 按属性释放策略过滤主体属性
func (r *RegisteredService) ReleaseAttributes(attrs map[string][]string) map[string][]string {
	if len(r.AllowedAttributes) == 0 {
		return attrs
	}
	released := make(map[string][]string)
	for _, name := range r.AllowedAttributes {
		if values, ok := attrs[name]; ok {
			released[name] = values
		}
	}
	return released
}

// AcceptsHandler 检查处理器是否在该服务限定的处理器集合内
func (r *RegisteredService) AcceptsHandler(handlerName string) bool {
	if len(r.RequiredHandlers) == 0 {
		return true
	}
	for _, name := range r.RequiredHandlers {
		if name == handlerName {
			return true
		}
	}
	return false
}
