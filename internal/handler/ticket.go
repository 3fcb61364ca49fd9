package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-core/internal/config"
	"github.com/pu-ac-cn/sso-core/internal/cookie"
	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/service"
	"github.com/pu-ac-cn/sso-core/pkg/response"
)

// TicketHandler 票据签发与验证处理器
type TicketHandler struct {
	central   *service.CentralService
	services  *service.ServicesManager
	codec     *cookie.Codec
	cookieCfg config.CookieConfig
}

// NewTicketHandler 创建票据处理器
func NewTicketHandler(central *service.CentralService, services *service.ServicesManager,
	codec *cookie.Codec, cookieCfg config.CookieConfig) *TicketHandler {
	return &TicketHandler{
		central:   central,
		services:  services,
		codec:     codec,
		cookieCfg: cookieCfg,
	}
}

// GrantRequest ST 签发请求
type GrantRequest struct {
	Service string `json:"service" binding:"required"`
}

// Grant 基于现有会话为服务签发 ST
// POST /api/v1/tickets
func (h *TicketHandler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	value, err := c.Cookie(h.cookieCfg.Name)
	if err != nil || value == "" {
		response.Error(c, response.CodeInvalidCookie)
		return
	}
	tgtID, _, err := h.codec.Decode(value)
	if err != nil {
		response.Error(c, response.CodeInvalidCookie)
		return
	}

	// 不参与 SSO 的服务必须走凭据登录
	if regSvc := h.services.FindServiceBy(req.Service); regSvc != nil && !regSvc.SSOParticipant() {
		response.Error(c, response.CodeSSONotParticipated)
		return
	}

	st, err := h.central.GrantServiceTicket(c.Request.Context(), tgtID, req.Service, false)
	if err != nil {
		h.renderTicketError(c, err)
		return
	}
	response.Success(c, gin.H{"ticket": st.ID})
}

// ValidateRequest ST 验证请求
type ValidateRequest struct {
	Ticket  string `json:"ticket" binding:"required"`
	Service string `json:"service" binding:"required"`
}

// ValidateResponse ST 验证响应
type ValidateResponse struct {
	Principal    string              `json:"principal"`
	Attributes   map[string][]string `json:"attributes,omitempty"`
	FromNewLogin bool                `json:"from_new_login"`
	ChainLength  int                 `json:"chain_length"`
}

// Validate 验证并消费 ST
// POST /api/v1/validate
func (h *TicketHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	assertion, err := h.central.ValidateServiceTicket(c.Request.Context(), req.Ticket, req.Service)
	if err != nil {
		h.renderTicketError(c, err)
		return
	}
	response.Success(c, ValidateResponse{
		Principal:    assertion.Principal.ID,
		Attributes:   assertion.Attributes,
		FromNewLogin: assertion.FromNewLogin,
		ChainLength:  len(assertion.ChainedAuthentications),
	})
}

// ProxyGrantRequest PGT 签发请求
type ProxyGrantRequest struct {
	// Ticket 已验证的 ST
	Ticket string `json:"ticket" binding:"required"`
	// ProxyService 请求代理的服务标识
	ProxyService string `json:"proxy_service" binding:"required"`
}

// GrantProxyGranting 基于 ST 签发 PGT（供服务代理下游访问）
// POST /api/v1/proxy-granting
func (h *TicketHandler) GrantProxyGranting(c *gin.Context) {
	var req ProxyGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	// PGT 的认证主体是发起代理的服务本身
	auth := model.NewAuthentication(&model.Principal{ID: req.ProxyService}, nil)
	pgt, err := h.central.GrantProxyGrantingTicket(c.Request.Context(), req.Ticket, auth)
	if err != nil {
		h.renderTicketError(c, err)
		return
	}
	response.Success(c, gin.H{"ticket": pgt.ID})
}

// ProxyTicketRequest PT 签发请求
type ProxyTicketRequest struct {
	PGT     string `json:"pgt" binding:"required"`
	Service string `json:"service" binding:"required"`
}

// GrantProxy 基于 PGT 为目标服务签发 PT
// POST /api/v1/proxy
func (h *TicketHandler) GrantProxy(c *gin.Context) {
	var req ProxyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	pt, err := h.central.GrantProxyTicket(c.Request.Context(), req.PGT, req.Service)
	if err != nil {
		h.renderTicketError(c, err)
		return
	}
	response.Success(c, gin.H{"ticket": pt.ID})
}

// renderTicketError 将票据错误映射为响应码
func (h *TicketHandler) renderTicketError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTicketNotFound):
		response.Error(c, response.CodeTicketNotFound)
	case errors.Is(err, service.ErrTicketExpired):
		response.Error(c, response.CodeTicketExpired)
	case errors.Is(err, service.ErrServiceMismatch):
		response.Error(c, response.CodeServiceMismatch)
	case errors.Is(err, service.ErrUnauthorizedService):
		response.Error(c, response.CodeUnauthorizedSvc)
	default:
		response.Error(c, response.CodeServerError)
	}
}
