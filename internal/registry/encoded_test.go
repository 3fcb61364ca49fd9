package registry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/cipher"
	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) cipher.Executor {
	t.Helper()
	e, err := cipher.New(bytes.Repeat([]byte{0x42}, 32), []byte("signing-key"))
	require.NoError(t, err)
	return e
}

func TestEncodedRoundTrip(t *testing.T) {
	inner := NewMemory()
	r := NewEncoded(inner, newTestCipher(t))
	ctx := context.Background()

	tgt := newTestTGT(t, "TGT-1", nil)
	require.NoError(t, r.AddTicket(ctx, tgt))

	got, err := r.GetTicket(ctx, "TGT-1", model.PrefixTGT)
	require.NoError(t, err)
	assert.Equal(t, "TGT-1", got.GetID())

	restored, ok := got.(*model.TicketGrantingTicket)
	require.True(t, ok)
	assert.Equal(t, "alice", restored.Auth.PrincipalID)
}

func TestEncodedScramblesID(t *testing.T) {
	inner := NewMemory()
	r := NewEncoded(inner, newTestCipher(t))
	ctx := context.Background()

	require.NoError(t, r.AddTicket(ctx, newTestTGT(t, "TGT-secret", nil)))

	// 底层存储中看不到原始 ID，但保留类型前缀供计数
	stored, err := inner.GetTickets(ctx, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "TGT-secret", stored[0].GetID())
	assert.Equal(t, model.PrefixTGT, model.TicketKind(stored[0].GetID()))

	// 原始 ID 在底层直接查不到
	_, err = inner.GetTicket(ctx, "TGT-secret", "")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestEncodedWrongKeyFoldsToNotFound(t *testing.T) {
	inner := NewMemory()
	writer := NewEncoded(inner, newTestCipher(t))
	ctx := context.Background()

	require.NoError(t, writer.AddTicket(ctx, newTestTGT(t, "TGT-1", nil)))

	// 密钥不符时无法区分“不存在”与“无法解密”
	other, err := cipher.New(bytes.Repeat([]byte{0x24}, 32), []byte("signing-key"))
	require.NoError(t, err)
	reader := NewEncoded(inner, other)

	_, err = reader.GetTicket(ctx, "TGT-1", "")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestEncodedDeleteAndCounts(t *testing.T) {
	inner := NewMemory()
	r := NewEncoded(inner, newTestCipher(t))
	ctx := context.Background()

	require.NoError(t, r.AddTicket(ctx, newTestTGT(t, "TGT-1", nil)))
	require.NoError(t, r.AddTicket(ctx, newTestST("ST-1", "TGT-1", nil)))

	sessions, err := r.SessionCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sessions)

	existed, err := r.DeleteSingleTicket(ctx, "TGT-1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = r.DeleteSingleTicket(ctx, "TGT-1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestEncodedGetTicketsDecodes(t *testing.T) {
	inner := NewMemory()
	r := NewEncoded(inner, newTestCipher(t))
	ctx := context.Background()

	require.NoError(t, r.AddTicket(ctx, newTestTGT(t, "TGT-1", nil)))
	require.NoError(t, r.AddTicket(ctx, newTestST("ST-1", "TGT-1", nil)))

	onlyTGT, err := r.GetTickets(ctx, func(t model.Ticket) bool {
		return t.Kind() == model.PrefixTGT
	})
	require.NoError(t, err)
	require.Len(t, onlyTGT, 1)
	assert.Equal(t, "TGT-1", onlyTGT[0].GetID())
}

func TestEncodedSweepRemovesUndecodable(t *testing.T) {
	inner := NewMemory()
	ctx := context.Background()

	// 旧密钥写入的短时票据，轮换后无法解密
	writer := NewEncoded(inner, newTestCipher(t))
	stale := newTestST("ST-stale", "TGT-1", model.HardTimeoutPolicy{TTL: 20 * time.Millisecond})
	require.NoError(t, writer.AddTicket(ctx, stale))

	other, err := cipher.New(bytes.Repeat([]byte{0x24}, 32), []byte("signing-key"))
	require.NoError(t, err)
	reader := NewEncoded(inner, other)
	require.NoError(t, reader.AddTicket(ctx, newTestTGT(t, "TGT-live", model.NeverExpiresPolicy{})))

	// 物理 TTL 过后，无法解密的条目对清理器按过期可见并被删除
	time.Sleep(30 * time.Millisecond)
	cleaner := NewCleaner(reader, CleanerConfig{}, nil)
	assert.Equal(t, 1, cleaner.Sweep(ctx))

	remaining, err := inner.GetTickets(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	_, err = reader.GetTicket(ctx, "TGT-live", "")
	assert.NoError(t, err)
}

func TestEncodedOverRedis(t *testing.T) {
	redisRegistry, _ := setupTestRedis(t)
	r := NewEncoded(redisRegistry, newTestCipher(t))
	ctx := context.Background()

	tgt := newTestTGT(t, "TGT-1", nil)
	require.NoError(t, r.AddTicket(ctx, tgt))
	assert.ErrorIs(t, r.AddTicket(ctx, tgt), ErrDuplicateTicket)

	got, err := r.GetTicket(ctx, "TGT-1", model.PrefixTGT)
	require.NoError(t, err)
	assert.Equal(t, "TGT-1", got.GetID())
}
