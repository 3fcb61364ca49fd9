package authn

import (
	"strings"

	"github.com/pu-ac-cn/sso-core/internal/model"
)

// MetadataPopulator 认证元数据填充器
// 策略判定成功后按声明顺序执行，向认证结果追加横切属性
type MetadataPopulator interface {
	// Populate 向认证结果写入元数据
	Populate(auth *model.Authentication, c Credential)
}

// RememberMePopulator 记住我标记填充器
// 凭据请求持久会话时打上属性，供过期策略与 Cookie 层使用
type RememberMePopulator struct{}

// Populate 实现 MetadataPopulator
func (RememberMePopulator) Populate(auth *model.Authentication, c Credential) {
	if cred, ok := c.(*UsernamePasswordCredential); ok && cred.RememberMe {
		auth.SetAttribute(model.AttrRememberMe, "true")
	}
}

// SuccessfulHandlersPopulator 成功处理器名填充器
type SuccessfulHandlersPopulator struct{}

// Populate 实现 MetadataPopulator
func (SuccessfulHandlersPopulator) Populate(auth *model.Authentication, c Credential) {
	if names := auth.SuccessfulHandlers(); len(names) > 0 {
		auth.SetAttribute(model.AttrSuccessfulHandlers, strings.Join(names, ","))
	}
}

// CredentialTypePopulator 凭据类型填充器
type CredentialTypePopulator struct{}

// Populate 实现 MetadataPopulator
func (CredentialTypePopulator) Populate(auth *model.Authentication, c Credential) {
	switch c.(type) {
	case *UsernamePasswordCredential:
		auth.SetAttribute("credentialType", "UsernamePasswordCredential")
	default:
	}
}
