// Package handler HTTP 处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-core/internal/authn"
	"github.com/pu-ac-cn/sso-core/internal/config"
	"github.com/pu-ac-cn/sso-core/internal/cookie"
	"github.com/pu-ac-cn/sso-core/internal/mfa"
	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/service"
	"github.com/pu-ac-cn/sso-core/pkg/response"
)

// AuthHandler 登录登出处理器
type AuthHandler struct {
	manager   *authn.Manager
	central   *service.CentralService
	services  *service.ServicesManager
	resolver  mfa.Resolver
	codec     *cookie.Codec
	cookieCfg config.CookieConfig
}

// NewAuthHandler 创建登录登出处理器
func NewAuthHandler(manager *authn.Manager, central *service.CentralService,
	services *service.ServicesManager, resolver mfa.Resolver,
	codec *cookie.Codec, cookieCfg config.CookieConfig) *AuthHandler {
	return &AuthHandler{
		manager:   manager,
		central:   central,
		services:  services,
		resolver:  resolver,
		codec:     codec,
		cookieCfg: cookieCfg,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
	// Service 可选：登录成功后顺带为该服务签发 ST
	Service string `json:"service"`
	// MFAContext 可选：已完成的多因子上下文（提供方 ID）
	MFAContext string `json:"mfa_context"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Principal     string `json:"principal"`
	ServiceTicket string `json:"service_ticket,omitempty"`
}

// Login 凭据登录，建立 SSO 会话
// POST /api/v1/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	var regSvc *model.RegisteredService
	if req.Service != "" {
		regSvc = h.services.FindServiceBy(req.Service)
		if regSvc == nil || !regSvc.AccessAllowed() {
			response.Error(c, response.CodeUnauthorizedSvc)
			return
		}
	}

	cred := &authn.UsernamePasswordCredential{
		Username:   req.Username,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	}
	auth, err := h.manager.Authenticate(c.Request.Context(), cred, regSvc)
	if err != nil {
		h.renderAuthnError(c, err)
		return
	}
	if req.MFAContext != "" {
		auth.AddAttribute(model.AttrAuthnContext, req.MFAContext)
	}

	tgt, err := h.central.CreateTicketGrantingTicket(c.Request.Context(), auth)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}

	// 会话已建立，再仲裁目标服务的 MFA 要求
	event := h.resolver.Resolve(c.Request.Context(), tgt.ID, auth, regSvc)
	switch event.ID {
	case mfa.EventSuccess:
	case mfa.EventError:
		response.Error(c, response.CodeMFAUnavailable)
		return
	default:
		// 提供方事件：要求调用方先完成对应的多因子流程
		response.ErrorWithMsg(c, response.CodeMFARequired, "需要多因素认证: "+event.ID)
		return
	}

	cookieValue, err := h.codec.Encode(tgt.ID, req.RememberMe)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	h.setSessionCookie(c, cookieValue, req.RememberMe)

	resp := LoginResponse{Principal: auth.PrincipalID}
	if req.Service != "" {
		st, err := h.central.GrantServiceTicket(c.Request.Context(), tgt.ID, req.Service, true)
		if err != nil {
			response.Error(c, response.CodeServerError)
			return
		}
		resp.ServiceTicket = st.ID
	}
	response.Success(c, resp)
}

// Logout 销毁 SSO 会话及其派生票据
// POST /api/v1/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	tgtID, ok := h.sessionTicket(c)
	if !ok {
		// 没有有效会话也算登出成功
		h.clearSessionCookie(c)
		response.Success(c, gin.H{"deleted": 0})
		return
	}

	deleted, err := h.central.DestroyTicketGrantingTicket(c.Request.Context(), tgtID)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	h.clearSessionCookie(c)
	response.Success(c, gin.H{"deleted": deleted})
}

// Session 查询当前会话
// GET /api/v1/session
func (h *AuthHandler) Session(c *gin.Context) {
	tgtID, ok := h.sessionTicket(c)
	if !ok {
		response.Error(c, response.CodeInvalidCookie)
		return
	}

	tgt, err := h.central.GetTicketGrantingTicket(c.Request.Context(), tgtID)
	if err != nil {
		h.clearSessionCookie(c)
		if errors.Is(err, service.ErrTicketExpired) {
			response.Error(c, response.CodeTicketExpired)
			return
		}
		response.Error(c, response.CodeInvalidCookie)
		return
	}

	response.Success(c, gin.H{
		"principal":     tgt.Auth.PrincipalID,
		"created_at":    tgt.CreationTime,
		"count_of_uses": tgt.CountOfUses,
		"remember_me":   tgt.Auth.BoolAttribute(model.AttrRememberMe),
	})
}

// sessionTicket 从会话 Cookie 解出 TGT ID
func (h *AuthHandler) sessionTicket(c *gin.Context) (string, bool) {
	value, err := c.Cookie(h.cookieCfg.Name)
	if err != nil || value == "" {
		return "", false
	}
	tgtID, _, err := h.codec.Decode(value)
	if err != nil {
		return "", false
	}
	return tgtID, true
}

// setSessionCookie 下发会话 Cookie
func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, rememberMe bool) {
	maxAge := int(h.cookieCfg.MaxAge.Seconds())
	if rememberMe && h.cookieCfg.RememberMeAge > 0 {
		maxAge = int(h.cookieCfg.RememberMeAge.Seconds())
	}
	c.SetCookie(h.cookieCfg.Name, value, maxAge,
		h.cookieCfg.Path, h.cookieCfg.Domain, h.cookieCfg.Secure, true)
}

// clearSessionCookie 清除会话 Cookie
func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetCookie(h.cookieCfg.Name, "", -1,
		h.cookieCfg.Path, h.cookieCfg.Domain, h.cookieCfg.Secure, true)
}

// renderAuthnError 将认证错误映射为响应码
func (h *AuthHandler) renderAuthnError(c *gin.Context, err error) {
	var aggErr *authn.Error
	if errors.As(err, &aggErr) {
		switch {
		case aggErr.HasFailure(authn.ErrAccountDisabled):
			response.Error(c, response.CodeAccountLocked)
		case aggErr.HasFailure(authn.ErrPrevented):
			response.Error(c, response.CodeUnavailable)
		default:
			response.Error(c, response.CodeInvalidCredentials)
		}
		return
	}
	if errors.Is(err, authn.ErrNoSupportedHandler) {
		response.Error(c, response.CodeInvalidCredentials)
		return
	}
	response.Error(c, response.CodeServerError)
}
