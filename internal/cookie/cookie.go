// Package cookie SSO 会话 Cookie（TGC）的编解码
package cookie

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pu-ac-cn/sso-core/internal/cipher"
)

// Cookie 相关错误
var (
	ErrInvalidCookie = errors.New("无效的会话 Cookie")
	ErrCookieExpired = errors.New("会话 Cookie 已过期")
)

// TGC 会话 Cookie 的默认名称
const DefaultCookieName = "TGC"

// Codec 会话 Cookie 编解码器
// Cookie 值为 HS256 签名的 JWT，TGT ID 经加密执行器保护后放入声明；
// 拿到 Cookie 也无法还原注册表内的票据 ID
type Codec struct {
	signingKey []byte
	executor   cipher.Executor
	issuer     string
	maxAge     time.Duration
	rememberMe time.Duration // 记住我会话的 Cookie 寿命
}

// CodecConfig 编解码器配置
type CodecConfig struct {
	SigningKey    string
	Issuer        string
	MaxAge        time.Duration
	RememberMeAge time.Duration
}

// tgcClaims 会话 Cookie 的 JWT 声明
type tgcClaims struct {
	jwt.RegisteredClaims
	// Ticket 加密后的 TGT ID（base64）
	Ticket string `json:"tkt"`
	// RememberMe 持久会话标记
	RememberMe bool `json:"rme,omitempty"`
}

// NewCodec 创建会话 Cookie 编解码器
func NewCodec(cfg CodecConfig, executor cipher.Executor) (*Codec, error) {
	if cfg.SigningKey == "" {
		return nil, errors.New("会话 Cookie 签名密钥不能为空")
	}
	if executor == nil {
		executor = cipher.NewNoOp()
	}
	return &Codec{
		signingKey: []byte(cfg.SigningKey),
		executor:   executor,
		issuer:     cfg.Issuer,
		maxAge:     cfg.MaxAge,
		rememberMe: cfg.RememberMeAge,
	}, nil
}

// Encode 将 TGT ID 编码为 Cookie 值
func (c *Codec) Encode(tgtID string, rememberMe bool) (string, error) {
	sealed, err := c.executor.Encrypt([]byte(tgtID))
	if err != nil {
		return "", err
	}

	now := time.Now()
	age := c.maxAge
	if rememberMe && c.rememberMe > 0 {
		age = c.rememberMe
	}
	claims := tgcClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Ticket:     base64.RawURLEncoding.EncodeToString(sealed),
		RememberMe: rememberMe,
	}
	if age > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(age))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.signingKey)
}

// Decode 从 Cookie 值解出 TGT ID
// 签名、签发者、有效期任一不符都拒绝
func (c *Codec) Decode(value string) (tgtID string, rememberMe bool, err error) {
	var claims tgcClaims
	token, err := jwt.ParseWithClaims(value, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCookie
		}
		return c.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", false, ErrCookieExpired
		}
		return "", false, ErrInvalidCookie
	}
	if !token.Valid {
		return "", false, ErrInvalidCookie
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return "", false, ErrInvalidCookie
	}

	sealed, err := base64.RawURLEncoding.DecodeString(claims.Ticket)
	if err != nil {
		return "", false, ErrInvalidCookie
	}
	plain, err := c.executor.Decrypt(sealed)
	if err != nil {
		return "", false, ErrInvalidCookie
	}
	return string(plain), claims.RememberMe, nil
}
