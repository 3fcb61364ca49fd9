package mfa

import (
	"context"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"go.uber.org/zap"
)

// 解析结果事件
const (
	EventSuccess               = "success"               // 无需 MFA 或要求已满足
	EventError                 = "error"                 // 无法满足 MFA 要求（fail-closed）
	EventAuthenticationFailure = "authenticationFailure" // 认证本身失败
)

// Event 多因子解析事件
// ID 为 success/error/authenticationFailure 之一，或需要执行的提供方 ID
type Event struct {
	ID       string
	Provider Provider // 仅当 ID 为提供方事件时非空
}

// IsTerminal 事件是否为终态（非提供方事件）
func (e Event) IsTerminal() bool {
	return e.ID == EventSuccess || e.ID == EventError || e.ID == EventAuthenticationFailure
}

// Resolver 多因子事件解析器
type Resolver interface {
	// Resolve 判定本次访问需要的 MFA 动作
	Resolve(ctx context.Context, tgtID string, auth *model.Authentication, svc *model.RegisteredService) Event
}

// ServicePolicyResolver 按注册服务的 MFA 策略选择提供方
// 服务声明的提供方与已配置的提供方求交集后按权重取首个
type ServicePolicyResolver struct {
	providers []Provider
	logger    *zap.Logger
}

// NewServicePolicyResolver 创建服务策略解析器
func NewServicePolicyResolver(providers []Provider, logger *zap.Logger) *ServicePolicyResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServicePolicyResolver{providers: RankProviders(providers), logger: logger}
}

// Resolve 实现 Resolver
// 服务未声明 MFA 要求或声明的提供方都未配置时返回 success
func (r *ServicePolicyResolver) Resolve(ctx context.Context, tgtID string, auth *model.Authentication, svc *model.RegisteredService) Event {
	if svc == nil || !svc.RequiresMFA() {
		return Event{ID: EventSuccess}
	}
	for _, p := range r.providers {
		for _, want := range svc.MFAProviders {
			if p.ID() == want {
				return Event{ID: p.ID(), Provider: p}
			}
		}
	}
	r.logger.Warn("服务声明的 MFA 提供方均未配置",
		zap.Strings("wanted", svc.MFAProviders))
	return Event{ID: EventSuccess}
}

// RankedResolver 基于已有会话状态的 MFA 事件仲裁器
// 包装内层解析器：内层给出终态事件时直接透传；
// 给出提供方事件时先校验会话内已完成的认证上下文与旁路记录，
// 已满足则降级为 success，未满足再检查提供方可用性与失败模式
type RankedResolver struct {
	inner  Resolver
	bypass BypassEvaluator
	logger *zap.Logger
}

// NewRankedResolver 创建仲裁解析器
func NewRankedResolver(inner Resolver, bypass BypassEvaluator, logger *zap.Logger) *RankedResolver {
	if bypass == nil {
		bypass = NeverBypass{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankedResolver{inner: inner, bypass: bypass, logger: logger}
}

// Resolve 实现 Resolver
// 无会话或无目标服务时没有可仲裁的上下文，直接 success
func (r *RankedResolver) Resolve(ctx context.Context, tgtID string, auth *model.Authentication, svc *model.RegisteredService) Event {
	if tgtID == "" || svc == nil || auth == nil {
		return Event{ID: EventSuccess}
	}

	event := r.inner.Resolve(ctx, tgtID, auth, svc)
	if event.IsTerminal() {
		return event
	}
	return r.validateContext(ctx, auth, event, svc)
}

// validateContext 校验提供方事件能否被会话状态满足
func (r *RankedResolver) validateContext(ctx context.Context, auth *model.Authentication, event Event, svc *model.RegisteredService) Event {
	provider := event.Provider
	if provider == nil {
		// 非终态事件必须对应已配置的提供方，认不出的上下文一律失败关闭
		r.logger.Warn("无法识别的 MFA 事件", zap.String("event", event.ID))
		return Event{ID: EventError}
	}

	if auth != nil {
		// 会话内已完成该上下文的认证，无需重复执行
		if auth.HasAttributeValue(model.AttrAuthnContext, provider.ID()) {
			return Event{ID: EventSuccess}
		}
		if IsBypassRemembered(auth, provider) {
			return Event{ID: EventSuccess}
		}
		if r.bypass.ShouldBypass(auth, provider) {
			RememberBypass(auth, provider)
			r.logger.Info("MFA 按属性旁路",
				zap.String("provider", provider.ID()),
				zap.String("principal", auth.PrincipalID))
			return Event{ID: EventSuccess}
		}
	}

	if provider.Available(ctx) {
		return event
	}

	// 提供方不可用，按服务声明的失败模式裁决
	if svc.FailureOpen() {
		if auth != nil {
			RememberBypass(auth, provider)
		}
		r.logger.Warn("MFA 提供方不可用，失败开放放行",
			zap.String("provider", provider.ID()))
		return Event{ID: EventSuccess}
	}
	r.logger.Warn("MFA 提供方不可用，失败关闭拒绝",
		zap.String("provider", provider.ID()))
	return Event{ID: EventError}
}
