// Package cipher 对称加密与签名原语
// 保护注册表中存储的票据体和会话 Cookie；密钥构造后不可变，可被多协程并发使用
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
)

// 加解密相关错误
var (
	ErrInvalidKeySize    = errors.New("加密密钥长度必须为 16/24/32 字节")
	ErrEmptySigningKey   = errors.New("签名密钥不能为空")
	ErrCiphertextInvalid = errors.New("密文无效或已被篡改")
)

// Executor 加密签名执行器
// Encrypt 先签名后加密；Decrypt 先解密后验签，任何一步失败都返回错误，
// 调用方应将解码失败折叠为“票据不存在”，避免向请求方泄露信息
type Executor interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(ciphered []byte) ([]byte, error)
	// SignID 对票据 ID 做确定性摘要，用于注册表键名加扰
	SignID(id string) string
}

// aesExecutor AES-256-GCM + HMAC-SHA256 实现
type aesExecutor struct {
	aead       gocipher.AEAD
	signingKey []byte
}

// New 创建加密签名执行器
func New(encryptionKey, signingKey []byte) (Executor, error) {
	switch len(encryptionKey) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}
	if len(signingKey) == 0 {
		return nil, ErrEmptySigningKey
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("初始化 AES 失败: %w", err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("初始化 GCM 失败: %w", err)
	}

	return &aesExecutor{
		aead:       aead,
		signingKey: append([]byte(nil), signingKey...),
	}, nil
}

// sign 计算 HMAC-SHA256 签名
func (e *aesExecutor) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, e.signingKey)
	mac.Write(data)
	return mac.Sum(nil)
}

// Encrypt 签名后加密：密文 = nonce || GCM(签名 || 明文)
func (e *aesExecutor) Encrypt(plain []byte) ([]byte, error) {
	signed := append(e.sign(plain), plain...)

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("生成随机数失败: %w", err)
	}
	return e.aead.Seal(nonce, nonce, signed, nil), nil
}

// Decrypt 解密后验签
func (e *aesExecutor) Decrypt(ciphered []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphered) < nonceSize {
		return nil, ErrCiphertextInvalid
	}
	nonce, payload := ciphered[:nonceSize], ciphered[nonceSize:]

	signed, err := e.aead.Open(nil, nonce, payload, nil)
	if err != nil {
		return nil, ErrCiphertextInvalid
	}
	if len(signed) < sha256.Size {
		return nil, ErrCiphertextInvalid
	}
	sig, plain := signed[:sha256.Size], signed[sha256.Size:]
	if !hmac.Equal(sig, e.sign(plain)) {
		return nil, ErrCiphertextInvalid
	}
	return plain, nil
}

// SignID 返回票据 ID 的十六进制 HMAC 摘要
func (e *aesExecutor) SignID(id string) string {
	return fmt.Sprintf("%x", e.sign([]byte(id)))
}

// noOpExecutor 空执行器，用于无信任边界的后端
type noOpExecutor struct{}

// NewNoOp 创建空执行器
func NewNoOp() Executor {
	return noOpExecutor{}
}

func (noOpExecutor) Encrypt(plain []byte) ([]byte, error)    { return plain, nil }
func (noOpExecutor) Decrypt(ciphered []byte) ([]byte, error) { return ciphered, nil }
func (noOpExecutor) SignID(id string) string                 { return id }
