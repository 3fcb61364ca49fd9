package service

import (
	"context"
	"testing"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceURL = "https://a.example.org/cb"

// newTestCentral 内存注册表 + 预注册一个放行所有 https 服务的门面
func newTestCentral(t *testing.T, policies TicketPolicies) *CentralService {
	t.Helper()
	manager := NewServicesManager(newFakeServiceRepository(), nil)
	require.NoError(t, manager.Save(context.Background(), &model.RegisteredService{
		Name:      "测试应用",
		ServiceID: "^https://a\\.example\\.org/.*",
		Enabled:   true,
	}))
	return NewCentralService(registry.NewMemory(), manager, policies, nil)
}

func newTestAuthentication(principal string) *model.Authentication {
	return model.NewAuthentication(
		&model.Principal{ID: principal, Attributes: map[string][]string{
			"email": {principal + "@example.org"},
			"cn":    {principal},
		}},
		[]model.HandlerResult{{HandlerName: "database", Success: true}},
	)
}

func TestCentralCreateAndGetTGT(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	assert.Equal(t, model.PrefixTGT, model.TicketKind(tgt.ID))

	got, err := central.GetTicketGrantingTicket(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Auth.PrincipalID)

	_, err = central.GetTicketGrantingTicket(ctx, "TGT-missing")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCentralCreateTGTRequiresAuthentication(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{})
	_, err := central.CreateTicketGrantingTicket(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrNilAuthentication)
}

func TestCentralGrantAndValidateServiceTicket(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)

	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)
	assert.Equal(t, model.PrefixST, model.TicketKind(st.ID))
	assert.True(t, st.FromNewLogin)

	assertion, err := central.ValidateServiceTicket(ctx, st.ID, testServiceURL)
	require.NoError(t, err)
	assert.Equal(t, "alice", assertion.Principal.ID)
	assert.True(t, assertion.FromNewLogin)
	assert.Len(t, assertion.ChainedAuthentications, 1)
	assert.Equal(t, "alice", assertion.PrimaryAuthentication().PrincipalID)

	// 验证即消费：二次验证拿不到票据
	_, err = central.ValidateServiceTicket(ctx, st.ID, testServiceURL)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCentralGrantToUnknownService(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)

	_, err = central.GrantServiceTicket(ctx, tgt.ID, "https://unknown.example.org/cb", false)
	assert.ErrorIs(t, err, ErrUnauthorizedService)
}

func TestCentralGrantToDisabledService(t *testing.T) {
	manager := NewServicesManager(newFakeServiceRepository(), nil)
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &model.RegisteredService{
		Name:      "停用应用",
		ServiceID: "^https://a\\.example\\.org/.*",
		Enabled:   false,
	}))
	central := NewCentralService(registry.NewMemory(), manager, TicketPolicies{}, nil)

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)

	_, err = central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	assert.ErrorIs(t, err, ErrUnauthorizedService)
}

func TestCentralGrantOnExpiredSession(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{
		TGT: model.HardTimeoutPolicy{TTL: time.Nanosecond},
	})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func TestCentralValidateExpiredServiceTicket(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{
		ST: model.HardTimeoutPolicy{TTL: time.Nanosecond},
	})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = central.ValidateServiceTicket(ctx, st.ID, testServiceURL)
	assert.ErrorIs(t, err, ErrTicketExpired)

	// 过期票据已被顺手清理
	_, err = central.ValidateServiceTicket(ctx, st.ID, testServiceURL)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCentralValidateServiceMismatchConsumesTicket(t *testing.T) {
	manager := NewServicesManager(newFakeServiceRepository(), nil)
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &model.RegisteredService{
		Name: "宽匹配", ServiceID: "^https://.*", Enabled: true,
	}))
	central := NewCentralService(registry.NewMemory(), manager, TicketPolicies{}, nil)

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)

	_, err = central.ValidateServiceTicket(ctx, st.ID, "https://b.example.org/other")
	assert.ErrorIs(t, err, ErrServiceMismatch)

	// 防重放：不一致的验证同样消费掉票据
	_, err = central.ValidateServiceTicket(ctx, st.ID, testServiceURL)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCentralValidateNormalizedEquivalentURL(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)

	// 归一化等价（大小写、查询串、jsessionid）不算不一致
	assertion, err := central.ValidateServiceTicket(ctx, st.ID,
		"HTTPS://A.EXAMPLE.ORG/cb;jsessionid=0A1B?ticket=x")
	require.NoError(t, err)
	assert.Equal(t, "alice", assertion.Principal.ID)
}

func TestCentralAttributeRelease(t *testing.T) {
	manager := NewServicesManager(newFakeServiceRepository(), nil)
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &model.RegisteredService{
		Name:              "受限应用",
		ServiceID:         "^https://a\\.example\\.org/.*",
		Enabled:           true,
		AllowedAttributes: []string{"email"},
	}))
	central := NewCentralService(registry.NewMemory(), manager, TicketPolicies{}, nil)

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)

	assertion, err := central.ValidateServiceTicket(ctx, st.ID, testServiceURL)
	require.NoError(t, err)

	// 仅释放白名单内的属性
	assert.Contains(t, assertion.Attributes, "email")
	assert.NotContains(t, assertion.Attributes, "cn")
}

func TestCentralFromNewLoginSequence(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)

	first, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)
	assert.True(t, first.FromNewLogin)

	// 会话已使用过且未重新提交凭据
	second, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)
	assert.False(t, second.FromNewLogin)

	// 重新提交凭据恢复新登录语义
	third, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, true)
	require.NoError(t, err)
	assert.True(t, third.FromNewLogin)
}

func TestCentralProxyChain(t *testing.T) {
	manager := NewServicesManager(newFakeServiceRepository(), nil)
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &model.RegisteredService{
		Name: "全部应用", ServiceID: "^https://.*", Enabled: true,
	}))
	central := NewCentralService(registry.NewMemory(), manager, TicketPolicies{}, nil)

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)

	pgt, err := central.GrantProxyGrantingTicket(ctx, st.ID, newTestAuthentication("proxy-a"))
	require.NoError(t, err)
	assert.Equal(t, model.PrefixPGT, model.TicketKind(pgt.ID))
	assert.Equal(t, tgt.ID, pgt.ParentID)

	pt, err := central.GrantProxyTicket(ctx, pgt.ID, "https://b.example.org/api")
	require.NoError(t, err)
	assert.Equal(t, model.PrefixPT, model.TicketKind(pt.ID))

	// PT 验证后的认证链根在前：先 alice，后代理服务
	assertion, err := central.ValidateServiceTicket(ctx, pt.ID, "https://b.example.org/api")
	require.NoError(t, err)
	require.Len(t, assertion.ChainedAuthentications, 2)
	assert.Equal(t, "alice", assertion.ChainedAuthentications[0].PrincipalID)
	assert.Equal(t, "proxy-a", assertion.ChainedAuthentications[1].PrincipalID)
	assert.Equal(t, "alice", assertion.PrimaryAuthentication().PrincipalID)
	// PT 非新登录授予
	assert.False(t, assertion.FromNewLogin)
}

func TestCentralGrantPGTOnExpiredST(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{
		ST: model.HardTimeoutPolicy{TTL: time.Nanosecond},
	})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = central.GrantProxyGrantingTicket(ctx, st.ID, newTestAuthentication("proxy-a"))
	assert.ErrorIs(t, err, ErrTicketExpired)
}

func TestCentralDestroyCascade(t *testing.T) {
	manager := NewServicesManager(newFakeServiceRepository(), nil)
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &model.RegisteredService{
		Name: "全部应用", ServiceID: "^https://.*", Enabled: true,
	}))
	central := NewCentralService(registry.NewMemory(), manager, TicketPolicies{}, nil)

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st1, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)
	st2, err := central.GrantServiceTicket(ctx, tgt.ID, "https://b.example.org/cb", false)
	require.NoError(t, err)
	pgt, err := central.GrantProxyGrantingTicket(ctx, st1.ID, newTestAuthentication("proxy-a"))
	require.NoError(t, err)
	pt, err := central.GrantProxyTicket(ctx, pgt.ID, "https://c.example.org/api")
	require.NoError(t, err)

	// TGT + 2 个 ST + PGT + PT 整树删除
	deleted, err := central.DestroyTicketGrantingTicket(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	for _, id := range []string{tgt.ID, st1.ID, st2.ID, pgt.ID, pt.ID} {
		_, err := central.GetTicketGrantingTicket(ctx, id)
		assert.ErrorIs(t, err, ErrTicketNotFound, id)
	}

	// 幂等：再次销毁删除 0 张且不报错
	deleted, err = central.DestroyTicketGrantingTicket(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestCentralDestroyInvalidatesProxyChain(t *testing.T) {
	manager := NewServicesManager(newFakeServiceRepository(), nil)
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &model.RegisteredService{
		Name: "全部应用", ServiceID: "^https://.*", Enabled: true,
	}))
	central := NewCentralService(registry.NewMemory(), manager, TicketPolicies{}, nil)

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	st, err := central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)
	pgt, err := central.GrantProxyGrantingTicket(ctx, st.ID, newTestAuthentication("proxy-a"))
	require.NoError(t, err)

	// 销毁根会话后，代理链上的 PGT 无法再签发票据
	_, err = central.DestroyTicketGrantingTicket(ctx, tgt.ID)
	require.NoError(t, err)
	_, err = central.GrantProxyTicket(ctx, pgt.ID, testServiceURL)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCentralCounts(t *testing.T) {
	central := newTestCentral(t, TicketPolicies{})
	ctx := context.Background()

	tgt, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("alice"))
	require.NoError(t, err)
	_, err = central.GrantServiceTicket(ctx, tgt.ID, testServiceURL, false)
	require.NoError(t, err)

	sessions, err := central.SessionCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sessions)

	serviceTickets, err := central.ServiceTicketCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, serviceTickets)
}

func TestCentralRememberMePolicyApplied(t *testing.T) {
	rememberTTL := 100 * time.Millisecond
	central := newTestCentral(t, TicketPolicies{
		TGT: model.HardTimeoutPolicy{TTL: time.Nanosecond},
		RememberMeTGT: model.RememberMePolicy{
			RememberTTL: rememberTTL,
			Default:     model.HardTimeoutPolicy{TTL: time.Nanosecond},
		},
	})
	ctx := context.Background()

	// 记住我会话走长策略，普通会话立即过期
	remembered := newTestAuthentication("alice")
	remembered.SetAttribute(model.AttrRememberMe, "true")
	tgtRemembered, err := central.CreateTicketGrantingTicket(ctx, remembered)
	require.NoError(t, err)

	tgtPlain, err := central.CreateTicketGrantingTicket(ctx, newTestAuthentication("bob"))
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = central.GetTicketGrantingTicket(ctx, tgtRemembered.ID)
	assert.NoError(t, err)
	_, err = central.GetTicketGrantingTicket(ctx, tgtPlain.ID)
	assert.ErrorIs(t, err, ErrTicketExpired)
}
