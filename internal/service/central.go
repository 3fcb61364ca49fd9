package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/registry"
	"go.uber.org/zap"
)

// 票据生命周期错误
var (
	// ErrTicketNotFound 票据不存在（含已过期被清理、解码失败等情形）
	ErrTicketNotFound = errors.New("票据不存在")
	// ErrTicketExpired 票据存在但已过期
	ErrTicketExpired = errors.New("票据已过期")
	// ErrServiceMismatch ST 验证时提交的服务与授予时不一致
	ErrServiceMismatch = errors.New("服务与票据授予时不一致")
	// ErrUnauthorizedService 服务未注册或被禁用
	ErrUnauthorizedService = errors.New("服务未注册或不允许访问")
)

// TicketPolicies 各类票据的过期策略配置
type TicketPolicies struct {
	TGT model.ExpirationPolicy // 会话票据
	ST  model.ExpirationPolicy // 服务票据
	PGT model.ExpirationPolicy // 代理授予票据
	PT  model.ExpirationPolicy // 代理票据

	// RememberMeTGT 记住我会话的策略；为空时沿用 TGT 策略
	RememberMeTGT model.ExpirationPolicy

	// OnlyTrackMostRecent 同一服务重复授予时仅保留最近一次
	OnlyTrackMostRecent bool
}

// Assertion ST 验证成功后的断言
type Assertion struct {
	// Principal 主票据链末端的认证主体
	Principal *model.Principal
	// Attributes 按服务属性释放策略过滤后的主体属性
	Attributes map[string][]string
	// ChainedAuthentications 代理链上的全部认证结果，按创建顺序（根在前）
	ChainedAuthentications []*model.Authentication
	// Service 票据授予的服务
	Service *model.Service
	// FromNewLogin 票据是否来自新登录
	FromNewLogin bool
}

// PrimaryAuthentication 链上最初的认证结果
func (a *Assertion) PrimaryAuthentication() *model.Authentication {
	if len(a.ChainedAuthentications) == 0 {
		return nil
	}
	return a.ChainedAuthentications[0]
}

// CentralService 票据生命周期门面
// 所有票据的签发、验证与销毁都经由此处，调用方不直接触碰注册表
type CentralService struct {
	tickets  registry.TicketRegistry
	services *ServicesManager
	policies TicketPolicies
	logger   *zap.Logger
}

// NewCentralService 创建票据生命周期门面
func NewCentralService(tickets registry.TicketRegistry, services *ServicesManager,
	policies TicketPolicies, logger *zap.Logger) *CentralService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policies.TGT == nil {
		policies.TGT = model.NeverExpiresPolicy{}
	}
	if policies.ST == nil {
		policies.ST = model.NeverExpiresPolicy{}
	}
	if policies.PGT == nil {
		policies.PGT = policies.TGT
	}
	if policies.PT == nil {
		policies.PT = policies.ST
	}
	return &CentralService{
		tickets:  tickets,
		services: services,
		policies: policies,
		logger:   logger,
	}
}

// CreateTicketGrantingTicket 为一次成功认证签发 TGT
// 认证结果带记住我属性时套用记住我策略
func (c *CentralService) CreateTicketGrantingTicket(ctx context.Context, auth *model.Authentication) (*model.TicketGrantingTicket, error) {
	policy := c.policies.TGT
	if c.policies.RememberMeTGT != nil {
		policy = c.policies.RememberMeTGT
	}
	tgt, err := model.NewTicketGrantingTicket(model.NewTicketID(model.PrefixTGT), auth, policy)
	if err != nil {
		return nil, err
	}
	if err := c.tickets.AddTicket(ctx, tgt); err != nil {
		return nil, fmt.Errorf("存储 TGT 失败: %w", err)
	}
	c.logger.Info("已签发 TGT",
		zap.String("ticket", tgt.ID),
		zap.String("principal", auth.PrincipalID))
	return tgt, nil
}

// GrantServiceTicket 基于 TGT 为服务签发 ST
// credentialProvided 表示本次请求重新提交了凭据（影响 fromNewLogin 判定）
func (c *CentralService) GrantServiceTicket(ctx context.Context, tgtID, serviceURL string, credentialProvided bool) (*model.ServiceTicket, error) {
	regSvc := c.services.FindServiceBy(serviceURL)
	if regSvc == nil || !regSvc.AccessAllowed() {
		return nil, ErrUnauthorizedService
	}

	tgt, err := c.fetchTGT(ctx, tgtID)
	if err != nil {
		return nil, err
	}

	svc := model.NewService(serviceURL)
	st := tgt.GrantServiceTicket(model.NewTicketID(model.PrefixST), svc, c.policies.ST,
		credentialProvided, c.policies.OnlyTrackMostRecent)

	if err := c.tickets.AddTicket(ctx, st); err != nil {
		return nil, fmt.Errorf("存储 ST 失败: %w", err)
	}
	// TGT 的使用计数与授予记录已变化，回写注册表
	if err := c.tickets.UpdateTicket(ctx, tgt); err != nil {
		return nil, fmt.Errorf("回写 TGT 失败: %w", err)
	}

	c.logger.Info("已签发 ST",
		zap.String("ticket", st.ID),
		zap.String("session", tgtID),
		zap.String("service", svc.NormalizedID))
	return st, nil
}

// ValidateServiceTicket 验证并消费 ST
// 验证即消费：单次使用的 ST 验证后立即从注册表删除；
// 服务 URL 归一化后必须与授予时一致
func (c *CentralService) ValidateServiceTicket(ctx context.Context, stID, serviceURL string) (*Assertion, error) {
	ticket, err := c.tickets.GetTicket(ctx, stID, model.TicketKind(stID))
	if err != nil {
		if errors.Is(err, registry.ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	st, ok := ticket.(*model.ServiceTicket)
	if !ok {
		return nil, ErrTicketNotFound
	}

	if st.IsExpired() {
		_, _ = c.tickets.DeleteSingleTicket(ctx, stID)
		return nil, ErrTicketExpired
	}

	svc := model.NewService(serviceURL)
	if !st.MatchesService(svc) {
		// 防重放：服务不一致同样消费掉票据
		_, _ = c.tickets.DeleteSingleTicket(ctx, stID)
		c.logger.Warn("ST 验证服务不一致",
			zap.String("ticket", stID),
			zap.String("granted", st.Service.NormalizedID),
			zap.String("presented", svc.NormalizedID))
		return nil, ErrServiceMismatch
	}

	st.Consume()
	if st.IsExpired() {
		if _, err := c.tickets.DeleteSingleTicket(ctx, stID); err != nil {
			c.logger.Warn("删除已消费 ST 失败", zap.String("ticket", stID), zap.Error(err))
		}
	} else {
		if err := c.tickets.UpdateTicket(ctx, st); err != nil {
			return nil, fmt.Errorf("回写 ST 失败: %w", err)
		}
	}

	tgt, err := c.fetchTGT(ctx, st.TGTID)
	if err != nil {
		return nil, err
	}

	chain := tgt.GetChainedAuthentications()
	principal := tgt.Auth.Principal()
	attrs := principal.Attributes
	if regSvc := c.services.FindServiceBy(serviceURL); regSvc != nil {
		attrs = regSvc.ReleaseAttributes(attrs)
	}

	c.logger.Info("ST 验证成功",
		zap.String("ticket", stID),
		zap.String("principal", principal.ID),
		zap.Bool("from_new_login", st.FromNewLogin))
	return &Assertion{
		Principal:              principal,
		Attributes:             attrs,
		ChainedAuthentications: chain,
		Service:                st.Service,
		FromNewLogin:           st.FromNewLogin,
	}, nil
}

// GrantProxyGrantingTicket 基于已验证的 ST 签发 PGT
// PGT 挂在 ST 所属的 TGT 之下，形成代理链
func (c *CentralService) GrantProxyGrantingTicket(ctx context.Context, stID string, auth *model.Authentication) (*model.TicketGrantingTicket, error) {
	ticket, err := c.tickets.GetTicket(ctx, stID, model.TicketKind(stID))
	if err != nil {
		if errors.Is(err, registry.ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	st, ok := ticket.(*model.ServiceTicket)
	if !ok {
		return nil, ErrTicketNotFound
	}
	if st.IsExpired() {
		return nil, ErrTicketExpired
	}

	parent, err := c.fetchTGT(ctx, st.TGTID)
	if err != nil {
		return nil, err
	}

	pgt, err := model.NewProxyGrantingTicket(model.NewTicketID(model.PrefixPGT), parent, auth, c.policies.PGT)
	if err != nil {
		return nil, err
	}
	if err := c.tickets.AddTicket(ctx, pgt); err != nil {
		return nil, fmt.Errorf("存储 PGT 失败: %w", err)
	}

	parent.TrackProxyGrantingTicket(pgt.ID)
	if err := c.tickets.UpdateTicket(ctx, parent); err != nil {
		return nil, fmt.Errorf("回写 TGT 失败: %w", err)
	}

	c.logger.Info("已签发 PGT",
		zap.String("ticket", pgt.ID),
		zap.String("parent", parent.ID))
	return pgt, nil
}

// GrantProxyTicket 基于 PGT 为目标服务签发代理票据
func (c *CentralService) GrantProxyTicket(ctx context.Context, pgtID, serviceURL string) (*model.ServiceTicket, error) {
	regSvc := c.services.FindServiceBy(serviceURL)
	if regSvc == nil || !regSvc.AccessAllowed() {
		return nil, ErrUnauthorizedService
	}

	pgt, err := c.fetchTGT(ctx, pgtID)
	if err != nil {
		return nil, err
	}

	svc := model.NewService(serviceURL)
	pt := pgt.GrantServiceTicket(model.NewTicketID(model.PrefixPT), svc, c.policies.PT,
		false, c.policies.OnlyTrackMostRecent)

	if err := c.tickets.AddTicket(ctx, pt); err != nil {
		return nil, fmt.Errorf("存储 PT 失败: %w", err)
	}
	if err := c.tickets.UpdateTicket(ctx, pgt); err != nil {
		return nil, fmt.Errorf("回写 PGT 失败: %w", err)
	}

	c.logger.Info("已签发 PT",
		zap.String("ticket", pt.ID),
		zap.String("session", pgtID))
	return pt, nil
}

// DestroyTicketGrantingTicket 销毁会话并级联清理
// 删除 TGT 本身、其授予的全部 ST/PT，以及派生的整棵 PGT 子树；
// 返回删除的票据数量，票据已不存在不算错误
func (c *CentralService) DestroyTicketGrantingTicket(ctx context.Context, tgtID string) (int, error) {
	ticket, err := c.tickets.GetTicket(ctx, tgtID, model.TicketKind(tgtID))
	if err != nil {
		if errors.Is(err, registry.ErrTicketNotFound) {
			return 0, nil
		}
		return 0, err
	}
	tgt, ok := ticket.(*model.TicketGrantingTicket)
	if !ok {
		return 0, nil
	}

	deleted := 0
	// 先清理子孙再删自身，中途失败时根票据仍在，可重试
	for stID := range tgt.GetServices() {
		existed, err := c.tickets.DeleteSingleTicket(ctx, stID)
		if err != nil {
			c.logger.Warn("级联删除 ST 失败", zap.String("ticket", stID), zap.Error(err))
			continue
		}
		if existed {
			deleted++
		}
	}
	for _, pgtID := range tgt.ProxyGrantingIDs {
		n, err := c.DestroyTicketGrantingTicket(ctx, pgtID)
		if err != nil {
			c.logger.Warn("级联销毁 PGT 失败", zap.String("ticket", pgtID), zap.Error(err))
			continue
		}
		deleted += n
	}

	existed, err := c.tickets.DeleteSingleTicket(ctx, tgtID)
	if err != nil {
		return deleted, fmt.Errorf("删除 TGT 失败: %w", err)
	}
	if existed {
		deleted++
	}

	c.logger.Info("会话已销毁",
		zap.String("ticket", tgtID),
		zap.Int("deleted", deleted))
	return deleted, nil
}

// GetTicketGrantingTicket 取未过期的 TGT（会话有效性查询）
func (c *CentralService) GetTicketGrantingTicket(ctx context.Context, tgtID string) (*model.TicketGrantingTicket, error) {
	return c.fetchTGT(ctx, tgtID)
}

// SessionCount 活跃会话数
func (c *CentralService) SessionCount(ctx context.Context) (int64, error) {
	return c.tickets.SessionCount(ctx)
}

// ServiceTicketCount 未消费的服务票据数
func (c *CentralService) ServiceTicketCount(ctx context.Context) (int64, error) {
	return c.tickets.ServiceTicketCount(ctx)
}

// fetchTGT 取 TGT/PGT 并重建代理链上的父引用
// 过期的票据按 ErrTicketExpired 返回，不在此处删除（交由清理器）
func (c *CentralService) fetchTGT(ctx context.Context, id string) (*model.TicketGrantingTicket, error) {
	tgt, err := c.loadChain(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	if tgt.IsExpired() {
		return nil, ErrTicketExpired
	}
	return tgt, nil
}

// maxProxyChainDepth 代理链深度上限，防御存储中的环
const maxProxyChainDepth = 16

func (c *CentralService) loadChain(ctx context.Context, id string, depth int) (*model.TicketGrantingTicket, error) {
	if depth > maxProxyChainDepth {
		return nil, fmt.Errorf("代理链过深: %s", id)
	}
	ticket, err := c.tickets.GetTicket(ctx, id, model.TicketKind(id))
	if err != nil {
		if errors.Is(err, registry.ErrTicketNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	tgt, ok := ticket.(*model.TicketGrantingTicket)
	if !ok {
		return nil, ErrTicketNotFound
	}
	if tgt.ParentID != "" && tgt.GetParent() == nil {
		parent, err := c.loadChain(ctx, tgt.ParentID, depth+1)
		if err != nil {
			// 父票据缺失时整条链失效
			return nil, err
		}
		tgt.SetParent(parent)
	}
	return tgt, nil
}
