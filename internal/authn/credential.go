package authn

// Credential 认证凭据
type Credential interface {
	// CredentialID 凭据标识（用户名等），仅用于日志与审计
	CredentialID() string
}

// UsernamePasswordCredential 用户名密码凭据
type UsernamePasswordCredential struct {
	Username   string
	Password   string
	RememberMe bool // 请求持久会话
}

// CredentialID 返回用户名
func (c *UsernamePasswordCredential) CredentialID() string {
	return c.Username
}

// PasswordEncoder 密码编码函数（可插拔，无副作用）
type PasswordEncoder interface {
	// Encode 将明文编码为存储形态
	Encode(raw string) (string, error)
	// Matches 校验明文与存储形态是否匹配
	Matches(raw, encoded string) bool
}

// PrincipalTransformer 主体名变换函数（可插拔，无副作用）
type PrincipalTransformer func(username string) string

// NoopTransformer 恒等变换
func NoopTransformer(username string) string { return username }
