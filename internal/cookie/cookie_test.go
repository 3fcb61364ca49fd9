package cookie

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, cfg CodecConfig) *Codec {
	t.Helper()
	executor, err := cipher.New(bytes.Repeat([]byte{0x42}, 32), []byte("signing-key"))
	require.NoError(t, err)
	codec, err := NewCodec(cfg, executor)
	require.NoError(t, err)
	return codec
}

func TestCodecRequiresSigningKey(t *testing.T) {
	_, err := NewCodec(CodecConfig{}, nil)
	assert.Error(t, err)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{
		SigningKey: "cookie-signing-key",
		Issuer:     "sso",
		MaxAge:     time.Hour,
	})

	value, err := codec.Encode("TGT-1234", false)
	require.NoError(t, err)
	// Cookie 值里看不到明文票据 ID
	assert.NotContains(t, value, "TGT-1234")

	tgtID, rememberMe, err := codec.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "TGT-1234", tgtID)
	assert.False(t, rememberMe)
}

func TestCodecRememberMeFlag(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{
		SigningKey:    "cookie-signing-key",
		MaxAge:        time.Hour,
		RememberMeAge: 24 * time.Hour,
	})

	value, err := codec.Encode("TGT-1234", true)
	require.NoError(t, err)

	_, rememberMe, err := codec.Decode(value)
	require.NoError(t, err)
	assert.True(t, rememberMe)
}

func TestCodecRejectsTampered(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{SigningKey: "cookie-signing-key"})

	value, err := codec.Encode("TGT-1234", false)
	require.NoError(t, err)

	// 破坏签名段
	parts := strings.Split(value, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, _, err = codec.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidCookie)

	_, _, err = codec.Decode("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCodecRejectsWrongSigningKey(t *testing.T) {
	writer := newTestCodec(t, CodecConfig{SigningKey: "key-a"})
	reader := newTestCodec(t, CodecConfig{SigningKey: "key-b"})

	value, err := writer.Encode("TGT-1234", false)
	require.NoError(t, err)

	_, _, err = reader.Decode(value)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCodecRejectsIssuerMismatch(t *testing.T) {
	writer := newTestCodec(t, CodecConfig{SigningKey: "cookie-signing-key", Issuer: "other"})
	reader := newTestCodec(t, CodecConfig{SigningKey: "cookie-signing-key", Issuer: "sso"})

	value, err := writer.Encode("TGT-1234", false)
	require.NoError(t, err)

	_, _, err = reader.Decode(value)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCodecRejectsExpired(t *testing.T) {
	codec := newTestCodec(t, CodecConfig{
		SigningKey: "cookie-signing-key",
		MaxAge:     time.Millisecond,
	})

	value, err := codec.Encode("TGT-1234", false)
	require.NoError(t, err)

	// JWT 时间声明按秒截断，毫秒级 MaxAge 在解码时必然已过期
	time.Sleep(10 * time.Millisecond)
	_, _, err = codec.Decode(value)
	assert.ErrorIs(t, err, ErrCookieExpired)
}

func TestCodecDifferentCipherKeyFails(t *testing.T) {
	// 签名一致但票据加密密钥不同，解密阶段拒绝
	writer := newTestCodec(t, CodecConfig{SigningKey: "cookie-signing-key"})

	other, err := cipher.New(bytes.Repeat([]byte{0x24}, 32), []byte("signing-key"))
	require.NoError(t, err)
	reader, err := NewCodec(CodecConfig{SigningKey: "cookie-signing-key"}, other)
	require.NoError(t, err)

	value, err := writer.Encode("TGT-1234", false)
	require.NoError(t, err)

	_, _, err = reader.Decode(value)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCodecNoOpExecutor(t *testing.T) {
	codec, err := NewCodec(CodecConfig{SigningKey: "cookie-signing-key"}, nil)
	require.NoError(t, err)

	value, err := codec.Encode("TGT-1234", false)
	require.NoError(t, err)

	tgtID, _, err := codec.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "TGT-1234", tgtID)
}
