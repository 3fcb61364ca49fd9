package mfa

import (
	"regexp"

	"github.com/pu-ac-cn/sso-core/internal/model"
)

// BypassEvaluator MFA 旁路判定
type BypassEvaluator interface {
	// ShouldBypass 判定该认证是否可跳过指定提供方
	ShouldBypass(auth *model.Authentication, provider Provider) bool
}

// AttributeBypassEvaluator 按主体/认证属性判定旁路
// 属性名匹配 NamePattern 且任一取值匹配 ValuePattern 时旁路；
// ValuePattern 为空时仅要求属性存在
type AttributeBypassEvaluator struct {
	namePattern  *regexp.Regexp
	valuePattern *regexp.Regexp
}

// NewAttributeBypassEvaluator 创建属性旁路判定器
func NewAttributeBypassEvaluator(namePattern, valuePattern string) (*AttributeBypassEvaluator, error) {
	nameRe, err := regexp.Compile(namePattern)
	if err != nil {
		return nil, err
	}
	e := &AttributeBypassEvaluator{namePattern: nameRe}
	if valuePattern != "" {
		valueRe, err := regexp.Compile(valuePattern)
		if err != nil {
			return nil, err
		}
		e.valuePattern = valueRe
	}
	return e, nil
}

// ShouldBypass 实现 BypassEvaluator
// 依次检查主体属性与认证属性
func (e *AttributeBypassEvaluator) ShouldBypass(auth *model.Authentication, provider Provider) bool {
	if auth == nil {
		return false
	}
	if e.matchAttrs(auth.PrincipalAttributes) {
		return true
	}
	return e.matchAttrs(auth.Attrs)
}

func (e *AttributeBypassEvaluator) matchAttrs(attrs map[string][]string) bool {
	for name, values := range attrs {
		if !e.namePattern.MatchString(name) {
			continue
		}
		if e.valuePattern == nil {
			return true
		}
		for _, v := range values {
			if e.valuePattern.MatchString(v) {
				return true
			}
		}
	}
	return false
}

// NeverBypass 恒不旁路
type NeverBypass struct{}

// ShouldBypass 实现 BypassEvaluator
func (NeverBypass) ShouldBypass(auth *model.Authentication, provider Provider) bool { return false }

// RememberBypass 在认证结果上记录一次旁路决定
// 同一会话内对该提供方的后续请求凭此直接放行
func RememberBypass(auth *model.Authentication, provider Provider) {
	auth.SetAttribute(model.AttrBypassMFA, "true")
	auth.AddAttribute(model.AttrBypassMFAProvider, provider.ID())
}

// IsBypassRemembered 检查该提供方的旁路是否已在会话内记录
func IsBypassRemembered(auth *model.Authentication, provider Provider) bool {
	if auth == nil || !auth.BoolAttribute(model.AttrBypassMFA) {
		return false
	}
	return auth.HasAttributeValue(model.AttrBypassMFAProvider, provider.ID())
}
