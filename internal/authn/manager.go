package authn

import (
	"context"
	"errors"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"go.uber.org/zap"
)

// Manager 认证事务管理器
// 组织处理器链的调用、策略判定与元数据填充，是认证流程的唯一入口
type Manager struct {
	handlers       []Handler
	policy         Policy
	populators     []MetadataPopulator
	handlerTimeout time.Duration
	logger         *zap.Logger
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithPopulators 设置元数据填充器（按声明顺序执行）
func WithPopulators(populators ...MetadataPopulator) ManagerOption {
	return func(m *Manager) { m.populators = populators }
}

// WithHandlerTimeout 设置单处理器调用超时
func WithHandlerTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.handlerTimeout = d }
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager 创建认证事务管理器
// policy 为空时默认任一成功即成功（短路）
func NewManager(handlers []Handler, policy Policy, opts ...ManagerOption) *Manager {
	if policy == nil {
		policy = AnyPolicy{}
	}
	m := &Manager{
		handlers:       handlers,
		policy:         policy,
		handlerTimeout: 10 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Authenticate 执行一次认证事务
// svc 非空时按注册服务的处理器白名单收窄候选集；
// 主体取首个成功结果的主体，失败时返回携带逐处理器原因的聚合错误
func (m *Manager) Authenticate(ctx context.Context, c Credential, svc *model.RegisteredService) (*model.Authentication, error) {
	candidates := m.resolveCandidates(c, svc)
	if len(candidates) == 0 {
		return nil, ErrNoSupportedHandler
	}

	state := newTransactionState()
	var results []model.HandlerResult
	var principal *model.Principal
	serviceURL := ""
	if svc != nil {
		serviceURL = svc.ServiceID
	}

	for _, h := range candidates {
		result, err := m.invoke(ctx, h, c, serviceURL)
		if err != nil {
			state.recordFailure(h.Name(), err)
			results = append(results, model.HandlerResult{HandlerName: h.Name(), Success: false})
			m.logger.Debug("认证处理器失败",
				zap.String("handler", h.Name()),
				zap.String("credential", c.CredentialID()),
				zap.Error(err))
			continue
		}

		state.recordSuccess(h.Name())
		results = append(results, *result)
		if principal == nil {
			principal = result.Principal
		}
		m.logger.Debug("认证处理器成功",
			zap.String("handler", h.Name()),
			zap.String("credential", c.CredentialID()))

		if m.policy.ShortCircuit() && m.policy.Satisfied(state) {
			break
		}
	}

	if !m.policy.Satisfied(state) || principal == nil {
		m.logger.Info("认证事务失败",
			zap.String("credential", c.CredentialID()),
			zap.String("policy", m.policy.Name()),
			zap.Int("failures", len(state.failures)))
		return nil, NewError(state.failures)
	}

	auth := model.NewAuthentication(principal, results)
	for _, p := range m.populators {
		p.Populate(auth, c)
	}
	m.logger.Info("认证事务成功",
		zap.String("principal", principal.ID),
		zap.Strings("handlers", state.successes))
	return auth, nil
}

// resolveCandidates 收窄候选处理器
// 先按凭据类型过滤，再按注册服务的白名单过滤
func (m *Manager) resolveCandidates(c Credential, svc *model.RegisteredService) []Handler {
	var candidates []Handler
	for _, h := range m.handlers {
		if !h.Supports(c) {
			continue
		}
		if svc != nil && !svc.AcceptsHandler(h.Name()) {
			continue
		}
		candidates = append(candidates, h)
	}
	return candidates
}

// invoke 带超时调用单个处理器
// 超时与取消按“处理器不可用”上报，不混入凭据拒绝类错误
func (m *Manager) invoke(ctx context.Context, h Handler, c Credential, serviceURL string) (*model.HandlerResult, error) {
	hctx := ctx
	if m.handlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, m.handlerTimeout)
		defer cancel()
	}

	result, err := h.Authenticate(hctx, c, serviceURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, errors.Join(ErrPrevented, err)
		}
		return nil, err
	}
	if result == nil || result.Principal == nil {
		return nil, errors.Join(ErrPrevented, errors.New("处理器返回空结果"))
	}
	return result, nil
}
