package handler

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/repository"
	"github.com/pu-ac-cn/sso-core/internal/service"
	"github.com/pu-ac-cn/sso-core/pkg/response"
)

// ServiceHandler 注册服务管理处理器
type ServiceHandler struct {
	services *service.ServicesManager
}

// NewServiceHandler 创建注册服务管理处理器
func NewServiceHandler(services *service.ServicesManager) *ServiceHandler {
	return &ServiceHandler{services: services}
}

// SaveServiceRequest 服务定义保存请求
type SaveServiceRequest struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name" binding:"required"`
	Description       string   `json:"description"`
	ServiceID         string   `json:"service_id" binding:"required"`
	EvaluationOrder   int      `json:"evaluation_order"`
	Enabled           *bool    `json:"enabled"`
	SSOEnabled        *bool    `json:"sso_enabled"`
	RequiredHandlers  []string `json:"required_handlers"`
	AllowedAttributes []string `json:"allowed_attributes"`
	MFAProviders      []string `json:"mfa_providers"`
	MFAFailureMode    string   `json:"mfa_failure_mode"`
}

// Save 新建或更新服务定义
// POST /api/v1/services
func (h *ServiceHandler) Save(c *gin.Context) {
	var req SaveServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}
	if _, err := regexp.Compile(req.ServiceID); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidFormat, "服务匹配正则无效: "+err.Error())
		return
	}

	svc := &model.RegisteredService{
		ID:                req.ID,
		Name:              req.Name,
		Description:       req.Description,
		ServiceID:         req.ServiceID,
		EvaluationOrder:   req.EvaluationOrder,
		Enabled:           true,
		SSOEnabled:        true,
		RequiredHandlers:  req.RequiredHandlers,
		AllowedAttributes: req.AllowedAttributes,
		MFAProviders:      req.MFAProviders,
		MFAFailureMode:    req.MFAFailureMode,
	}
	if req.Enabled != nil {
		svc.Enabled = *req.Enabled
	}
	if req.SSOEnabled != nil {
		svc.SSOEnabled = *req.SSOEnabled
	}
	if svc.MFAFailureMode == "" {
		svc.MFAFailureMode = model.FailureModeClosed
	}

	if err := h.services.Save(c.Request.Context(), svc); err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, svc)
}

// List 列出全部服务定义（按评估顺序）
// GET /api/v1/services
func (h *ServiceHandler) List(c *gin.Context) {
	response.Success(c, gin.H{
		"total":    h.services.Count(),
		"services": h.services.All(),
	})
}

// Get 按 ID 查询服务定义
// GET /api/v1/services/:id
func (h *ServiceHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, response.CodeInvalidFormat)
		return
	}
	svc := h.services.FindServiceByID(id)
	if svc == nil {
		response.Error(c, response.CodeServiceNotFound)
		return
	}
	response.Success(c, svc)
}

// Delete 删除服务定义
// DELETE /api/v1/services/:id
func (h *ServiceHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, response.CodeInvalidFormat)
		return
	}
	if err := h.services.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			response.Error(c, response.CodeServiceNotFound)
			return
		}
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, nil)
}
