package authn

import (
	"context"
	"strings"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// Handler 认证处理器契约
// 凭据源相关的实现（LDAP、数据库、静态表等）都满足此接口；
// Authenticate 的失败必须是本包定义的凭据拒绝类错误之一（可包装）
type Handler interface {
	// Name 处理器名，在事务结果中标识来源
	Name() string
	// Supports 是否能处理该凭据
	Supports(c Credential) bool
	// Authenticate 执行认证；serviceURL 供按服务定制的实现使用，可为空
	Authenticate(ctx context.Context, c Credential, serviceURL string) (*model.HandlerResult, error)
}

// BcryptEncoder bcrypt 密码编码器（默认实现）
type BcryptEncoder struct{}

// Encode 生成 bcrypt 哈希
func (BcryptEncoder) Encode(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Matches 校验 bcrypt 哈希
func (BcryptEncoder) Matches(raw, encoded string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(raw)) == nil
}

// PlainEncoder 明文编码器（仅测试用）
type PlainEncoder struct{}

func (PlainEncoder) Encode(raw string) (string, error) { return raw, nil }
func (PlainEncoder) Matches(raw, encoded string) bool  { return raw == encoded }

// AcceptUser 静态账户表中的一条账户
type AcceptUser struct {
	Password string
	Status   string              // 空或 active 表示正常
	Attrs    map[string][]string // 释放给主体的属性
}

// AcceptUsersHandler 静态账户表处理器
// 从配置加载的用户名->账户映射，适合开箱演示与测试
type AcceptUsersHandler struct {
	name        string
	users       map[string]AcceptUser
	encoder     PasswordEncoder
	transformer PrincipalTransformer
}

// NewAcceptUsersHandler 创建静态账户表处理器
func NewAcceptUsersHandler(name string, users map[string]AcceptUser, encoder PasswordEncoder, transformer PrincipalTransformer) *AcceptUsersHandler {
	if encoder == nil {
		encoder = PlainEncoder{}
	}
	if transformer == nil {
		transformer = NoopTransformer
	}
	return &AcceptUsersHandler{
		name:        name,
		users:       users,
		encoder:     encoder,
		transformer: transformer,
	}
}

// Name 返回处理器名
func (h *AcceptUsersHandler) Name() string { return h.name }

// Supports 仅处理用户名密码凭据
func (h *AcceptUsersHandler) Supports(c Credential) bool {
	_, ok := c.(*UsernamePasswordCredential)
	return ok
}

// Authenticate 按静态表校验凭据
func (h *AcceptUsersHandler) Authenticate(ctx context.Context, c Credential, serviceURL string) (*model.HandlerResult, error) {
	cred, ok := c.(*UsernamePasswordCredential)
	if !ok {
		return nil, ErrUnsupportedCredential
	}

	username := h.transformer(cred.Username)
	user, exists := h.users[username]
	if !exists {
		return nil, ErrAccountNotFound
	}

	switch strings.ToLower(user.Status) {
	case "", "active":
	case "disabled", "locked":
		return nil, ErrAccountDisabled
	case "expired":
		return nil, ErrAccountExpired
	case "password_expired":
		return nil, ErrCredentialExpired
	default:
		return nil, ErrAccountDisabled
	}

	if !h.encoder.Matches(cred.Password, user.Password) {
		return nil, ErrFailedLogin
	}

	return &model.HandlerResult{
		HandlerName: h.name,
		Principal:   &model.Principal{ID: username, Attributes: user.Attrs},
		Success:     true,
	}, nil
}
