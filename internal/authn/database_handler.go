package authn

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/repository"
)

// DatabaseHandler 数据库凭据源处理器
// 账户存于本地用户表；连续失败触发临时锁定
type DatabaseHandler struct {
	name        string
	users       repository.UserRepository
	transformer PrincipalTransformer
}

// NewDatabaseHandler 创建数据库凭据源处理器
func NewDatabaseHandler(name string, users repository.UserRepository, transformer PrincipalTransformer) *DatabaseHandler {
	if transformer == nil {
		transformer = NoopTransformer
	}
	return &DatabaseHandler{
		name:        name,
		users:       users,
		transformer: transformer,
	}
}

// Name 返回处理器名
func (h *DatabaseHandler) Name() string { return h.name }

// Supports 仅处理用户名密码凭据
func (h *DatabaseHandler) Supports(c Credential) bool {
	_, ok := c.(*UsernamePasswordCredential)
	return ok
}

// Authenticate 按用户表校验凭据
func (h *DatabaseHandler) Authenticate(ctx context.Context, c Credential, serviceURL string) (*model.HandlerResult, error) {
	cred, ok := c.(*UsernamePasswordCredential)
	if !ok {
		return nil, ErrUnsupportedCredential
	}

	username := h.transformer(cred.Username)
	user, err := h.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrAccountNotFound
		}
		// 存储不可达按“处理器不可用”上报，与凭据错误区分
		return nil, errors.Join(ErrPrevented, err)
	}

	if user.IsLocked() || !user.IsActive() {
		return nil, ErrAccountDisabled
	}
	if user.IsAccountExpired() {
		return nil, ErrAccountExpired
	}

	if !user.VerifyPassword(cred.Password) {
		user.IncrementFailedLogin()
		_ = h.users.Update(ctx, user)
		return nil, ErrFailedLogin
	}

	if user.IsPasswordExpired() {
		return nil, ErrCredentialExpired
	}

	if user.FailedLoginCount > 0 {
		user.ResetFailedLogin()
		_ = h.users.Update(ctx, user)
	}

	return &model.HandlerResult{
		HandlerName: h.name,
		Principal:   &model.Principal{ID: user.Username, Attributes: user.Attributes},
		Success:     true,
	}, nil
}
