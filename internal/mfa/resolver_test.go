package mfa

import (
	"context"
	"testing"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMFAService(providers []string, failureMode string) *model.RegisteredService {
	return &model.RegisteredService{
		Name:           "测试应用",
		ServiceID:      "^https://a\\.example\\.org/.*",
		Enabled:        true,
		MFAProviders:   providers,
		MFAFailureMode: failureMode,
	}
}

func newMFAAuthentication() *model.Authentication {
	return model.NewAuthentication(
		&model.Principal{ID: "alice"},
		[]model.HandlerResult{{HandlerName: "database", Success: true}},
	)
}

func TestRankProviders(t *testing.T) {
	ranked := RankProviders([]Provider{
		&StaticProvider{ProviderID: "mfa-webauthn", RankValue: 20},
		&StaticProvider{ProviderID: "mfa-totp", RankValue: 10},
		&StaticProvider{ProviderID: "mfa-sms", RankValue: 10},
	})

	// 权重升序，同权重按 ID 字典序
	require.Len(t, ranked, 3)
	assert.Equal(t, "mfa-sms", ranked[0].ID())
	assert.Equal(t, "mfa-totp", ranked[1].ID())
	assert.Equal(t, "mfa-webauthn", ranked[2].ID())
}

func TestServicePolicyResolverNoRequirement(t *testing.T) {
	r := NewServicePolicyResolver([]Provider{
		&StaticProvider{ProviderID: "mfa-totp"},
	}, nil)
	ctx := context.Background()

	event := r.Resolve(ctx, "TGT-1", newMFAAuthentication(), nil)
	assert.Equal(t, EventSuccess, event.ID)

	event = r.Resolve(ctx, "TGT-1", newMFAAuthentication(), newMFAService(nil, ""))
	assert.Equal(t, EventSuccess, event.ID)
}

func TestServicePolicyResolverPicksRankedProvider(t *testing.T) {
	r := NewServicePolicyResolver([]Provider{
		&StaticProvider{ProviderID: "mfa-webauthn", RankValue: 20},
		&StaticProvider{ProviderID: "mfa-totp", RankValue: 10},
	}, nil)

	// 服务声明了多个提供方时取权重最小者
	event := r.Resolve(context.Background(), "TGT-1", newMFAAuthentication(),
		newMFAService([]string{"mfa-webauthn", "mfa-totp"}, ""))
	assert.Equal(t, "mfa-totp", event.ID)
	require.NotNil(t, event.Provider)
	assert.False(t, event.IsTerminal())
}

func TestServicePolicyResolverUnknownProvider(t *testing.T) {
	r := NewServicePolicyResolver([]Provider{
		&StaticProvider{ProviderID: "mfa-totp"},
	}, nil)

	// 声明的提供方均未配置时不拦截登录
	event := r.Resolve(context.Background(), "TGT-1", newMFAAuthentication(),
		newMFAService([]string{"mfa-unknown"}, ""))
	assert.Equal(t, EventSuccess, event.ID)
}

func newRankedResolver(providers []Provider, bypass BypassEvaluator) *RankedResolver {
	return NewRankedResolver(NewServicePolicyResolver(providers, nil), bypass, nil)
}

// staticEventResolver 固定返回给定事件的内层解析器
type staticEventResolver struct {
	event Event
}

func (r staticEventResolver) Resolve(context.Context, string, *model.Authentication, *model.RegisteredService) Event {
	return r.event
}

func TestRankedResolverUnknownEventFailsClosed(t *testing.T) {
	// 内层给出既非终态也不带提供方的事件时失败关闭
	r := NewRankedResolver(staticEventResolver{event: Event{ID: "mfa-unknown"}}, nil, nil)

	event := r.Resolve(context.Background(), "TGT-1", newMFAAuthentication(),
		newMFAService([]string{"mfa-unknown"}, ""))
	assert.Equal(t, EventError, event.ID)
}

func TestRankedResolverPropagatesTerminalEvents(t *testing.T) {
	for _, id := range []string{EventSuccess, EventError, EventAuthenticationFailure} {
		r := NewRankedResolver(staticEventResolver{event: Event{ID: id}}, nil, nil)
		event := r.Resolve(context.Background(), "TGT-1", newMFAAuthentication(),
			newMFAService([]string{"mfa-totp"}, ""))
		assert.Equal(t, id, event.ID)
	}
}

func TestRankedResolverBlankContext(t *testing.T) {
	r := newRankedResolver([]Provider{&StaticProvider{ProviderID: "mfa-totp"}}, nil)
	ctx := context.Background()
	svc := newMFAService([]string{"mfa-totp"}, "")

	// 无会话或无目标服务时没有可仲裁的上下文
	assert.Equal(t, EventSuccess, r.Resolve(ctx, "", newMFAAuthentication(), svc).ID)
	assert.Equal(t, EventSuccess, r.Resolve(ctx, "TGT-1", newMFAAuthentication(), nil).ID)
	assert.Equal(t, EventSuccess, r.Resolve(ctx, "TGT-1", nil, svc).ID)
}

func TestRankedResolverRequiresProvider(t *testing.T) {
	r := newRankedResolver([]Provider{&StaticProvider{ProviderID: "mfa-totp"}}, nil)

	event := r.Resolve(context.Background(), "TGT-1", newMFAAuthentication(),
		newMFAService([]string{"mfa-totp"}, ""))
	assert.Equal(t, "mfa-totp", event.ID)
}

func TestRankedResolverContextAlreadySatisfied(t *testing.T) {
	r := newRankedResolver([]Provider{&StaticProvider{ProviderID: "mfa-totp"}}, nil)

	auth := newMFAAuthentication()
	auth.AddAttribute(model.AttrAuthnContext, "mfa-totp")

	// 会话内已完成该上下文，不再要求重复执行
	event := r.Resolve(context.Background(), "TGT-1", auth,
		newMFAService([]string{"mfa-totp"}, ""))
	assert.Equal(t, EventSuccess, event.ID)
}

func TestRankedResolverRememberedBypass(t *testing.T) {
	provider := &StaticProvider{ProviderID: "mfa-totp"}
	r := newRankedResolver([]Provider{provider}, nil)

	auth := newMFAAuthentication()
	RememberBypass(auth, provider)

	event := r.Resolve(context.Background(), "TGT-1", auth,
		newMFAService([]string{"mfa-totp"}, ""))
	assert.Equal(t, EventSuccess, event.ID)

	// 旁路记录只对被记录的提供方生效
	other := newMFAService([]string{"mfa-webauthn"}, "")
	r2 := newRankedResolver([]Provider{&StaticProvider{ProviderID: "mfa-webauthn"}}, nil)
	event = r2.Resolve(context.Background(), "TGT-1", auth, other)
	assert.Equal(t, "mfa-webauthn", event.ID)
}

func TestRankedResolverAttributeBypass(t *testing.T) {
	provider := &StaticProvider{ProviderID: "mfa-totp"}
	bypass, err := NewAttributeBypassEvaluator("^memberOf$", "internal-staff")
	require.NoError(t, err)
	r := newRankedResolver([]Provider{provider}, bypass)

	auth := model.NewAuthentication(
		&model.Principal{ID: "alice", Attributes: map[string][]string{
			"memberOf": {"internal-staff", "dev"},
		}},
		[]model.HandlerResult{{HandlerName: "database", Success: true}},
	)

	event := r.Resolve(context.Background(), "TGT-1", auth,
		newMFAService([]string{"mfa-totp"}, ""))
	assert.Equal(t, EventSuccess, event.ID)

	// 旁路决定写回认证结果，后续请求直接命中
	assert.True(t, IsBypassRemembered(auth, provider))
}

func TestRankedResolverAttributeBypassNoMatch(t *testing.T) {
	bypass, err := NewAttributeBypassEvaluator("^memberOf$", "internal-staff")
	require.NoError(t, err)
	r := newRankedResolver([]Provider{&StaticProvider{ProviderID: "mfa-totp"}}, bypass)

	event := r.Resolve(context.Background(), "TGT-1", newMFAAuthentication(),
		newMFAService([]string{"mfa-totp"}, ""))
	assert.Equal(t, "mfa-totp", event.ID)
}

func TestRankedResolverUnavailableFailClosed(t *testing.T) {
	down := &StaticProvider{
		ProviderID: "mfa-totp",
		Healthy:    func(context.Context) bool { return false },
	}
	r := newRankedResolver([]Provider{down}, nil)

	// 默认失败关闭：提供方不可用时拒绝
	event := r.Resolve(context.Background(), "TGT-1", newMFAAuthentication(),
		newMFAService([]string{"mfa-totp"}, model.FailureModeClosed))
	assert.Equal(t, EventError, event.ID)
}

func TestRankedResolverUnavailableFailOpen(t *testing.T) {
	down := &StaticProvider{
		ProviderID: "mfa-totp",
		Healthy:    func(context.Context) bool { return false },
	}
	r := newRankedResolver([]Provider{down}, nil)

	auth := newMFAAuthentication()
	event := r.Resolve(context.Background(), "TGT-1", auth,
		newMFAService([]string{"mfa-totp"}, model.FailureModeOpen))
	assert.Equal(t, EventSuccess, event.ID)

	// 失败开放的放行被记录为旁路
	assert.True(t, IsBypassRemembered(auth, down))
}

func TestAttributeBypassEvaluatorNameOnly(t *testing.T) {
	bypass, err := NewAttributeBypassEvaluator("^vipUser$", "")
	require.NoError(t, err)

	provider := &StaticProvider{ProviderID: "mfa-totp"}
	auth := newMFAAuthentication()
	assert.False(t, bypass.ShouldBypass(auth, provider))

	// 值模式为空时仅要求属性存在
	auth.SetAttribute("vipUser", "whatever")
	assert.True(t, bypass.ShouldBypass(auth, provider))
}

func TestAttributeBypassEvaluatorBadPattern(t *testing.T) {
	_, err := NewAttributeBypassEvaluator("([", "")
	assert.Error(t, err)
}
