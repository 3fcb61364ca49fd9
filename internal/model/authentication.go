package model

import (
	"encoding/json"
	"sync"
	"time"
)

// 认证属性键
const (
	AttrRememberMe         = "rememberMe"                                    // 记住我（持久会话）
	AttrSuccessfulHandlers = "successfulAuthenticationHandlers"              // 成功的处理器名列表
	AttrAuthnContext       = "authnContextClass"                             // 已完成的认证上下文（MFA 提供方 ID）
	AttrBypassMFA          = "bypassMultifactorAuthentication"               // MFA 旁路生效
	AttrBypassMFAProvider  = "bypassedMultifactorAuthenticationProviderId"   // 被旁路的提供方 ID
)

// Principal 认证主体
type Principal struct {
	ID         string              `json:"id"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// HandlerResult 单个认证处理器的执行结果
type HandlerResult struct {
	HandlerName string     `json:"handler_name"`
	Principal   *Principal `json:"principal,omitempty"`
	Success     bool       `json:"success"`
}

// Authentication 认证结果
// Attributes 是一个可变属性袋，后续流水线阶段（MFA 旁路、元数据填充器）
// 通过它回写横切信号，读写需经过带锁的访问方法
type Authentication struct {
	mu sync.RWMutex

	PrincipalID         string              `json:"principal_id"`
	PrincipalAttributes map[string][]string `json:"principal_attributes,omitempty"`
	Results             []HandlerResult     `json:"results,omitempty"`
	Attrs               map[string][]string `json:"attributes,omitempty"`
	AuthenticatedAt     time.Time           `json:"authenticated_at"`
}

// NewAuthentication 创建认证结果
func NewAuthentication(principal *Principal, results []HandlerResult) *Authentication {
	return &Authentication{
		PrincipalID:         principal.ID,
		PrincipalAttributes: principal.Attributes,
		Results:             results,
		Attrs:               make(map[string][]string),
		AuthenticatedAt:     time.Now(),
	}
}

// AddAttribute 追加属性值（同名属性形成多值）
func (a *Authentication) AddAttribute(name, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Attrs == nil {
		a.Attrs = make(map[string][]string)
	}
	a.Attrs[name] = append(a.Attrs[name], value)
}

// SetAttribute 覆盖属性值
func (a *Authentication) SetAttribute(name, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Attrs == nil {
		a.Attrs = make(map[string][]string)
	}
	a.Attrs[name] = []string{value}
}

// Attribute 返回属性的首个值
func (a *Authentication) Attribute(name string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	values, ok := a.Attrs[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// AttributeValues 返回属性的全部值
func (a *Authentication) AttributeValues(name string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.Attrs[name]...)
}

// HasAttributeValue 检查属性是否包含给定值
func (a *Authentication) HasAttributeValue(name, value string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, v := range a.Attrs[name] {
		if v == value {
			return true
		}
	}
	return false
}

// BoolAttribute 将属性首值解析为布尔
func (a *Authentication) BoolAttribute(name string) bool {
	v, ok := a.Attribute(name)
	return ok && v == "true"
}

// Principal 返回认证主体
func (a *Authentication) Principal() *Principal {
	return &Principal{ID: a.PrincipalID, Attributes: a.PrincipalAttributes}
}

// SuccessfulHandlers 返回成功的处理器名（按执行顺序）
func (a *Authentication) SuccessfulHandlers() []string {
	var names []string
	for _, r := range a.Results {
		if r.Success {
			names = append(names, r.HandlerName)
		}
	}
	return names
}

// authenticationJSON 序列化别名（跳过锁）
type authenticationJSON struct {
	PrincipalID         string              `json:"principal_id"`
	PrincipalAttributes map[string][]string `json:"principal_attributes,omitempty"`
	Results             []HandlerResult     `json:"results,omitempty"`
	Attrs               map[string][]string `json:"attributes,omitempty"`
	AuthenticatedAt     time.Time           `json:"authenticated_at"`
}

// MarshalJSON 实现 json.Marshaler
func (a *Authentication) MarshalJSON() ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return json.Marshal(authenticationJSON{
		PrincipalID:         a.PrincipalID,
		PrincipalAttributes: a.PrincipalAttributes,
		Results:             a.Results,
		Attrs:               a.Attrs,
		AuthenticatedAt:     a.AuthenticatedAt,
	})
}

// UnmarshalJSON 实现 json.Unmarshaler
func (a *Authentication) UnmarshalJSON(data []byte) error {
	var aux authenticationJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.PrincipalID = aux.PrincipalID
	a.PrincipalAttributes = aux.PrincipalAttributes
	a.Results = aux.Results
	a.Attrs = aux.Attrs
	a.AuthenticatedAt = aux.AuthenticatedAt
	return nil
}
