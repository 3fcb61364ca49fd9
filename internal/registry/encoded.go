package registry

import (
	"context"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/cipher"
	"github.com/pu-ac-cn/sso-core/internal/model"
)

// encodedTicket 加密后的票据存储形态
// ID 被摘要加扰（保留类型前缀），Body 为密文；
// 过期策略退化为按物理 TTL 的绝对超时，精确判定在解码后进行
type encodedTicket struct {
	id           string
	kind         string
	body         []byte
	creationTime time.Time
	ttl          time.Duration
}

func (t *encodedTicket) GetID() string              { return t.id }
func (t *encodedTicket) Kind() string               { return t.kind }
func (t *encodedTicket) GetCreationTime() time.Time { return t.creationTime }
func (t *encodedTicket) GetCountOfUses() int        { return 0 }
func (t *encodedTicket) MarkTicketExpired()         {}

func (t *encodedTicket) GetExpirationPolicy() model.ExpirationPolicy {
	if t.ttl <= 0 {
		return model.NeverExpiresPolicy{}
	}
	return model.HardTimeoutPolicy{TTL: t.ttl}
}

func (t *encodedTicket) IsExpired() bool {
	return t.ttl > 0 && time.Now().After(t.creationTime.Add(t.ttl))
}

// encodedRegistry 加密注册表装饰器
// 写入前加扰票据 ID 并加密票据体，读取后解密还原；
// 解码失败（密文损坏、密钥不符）一律折叠为“票据不存在”
type encodedRegistry struct {
	inner    TicketRegistry
	executor cipher.Executor
}

// NewEncoded 用加密执行器包装注册表
func NewEncoded(inner TicketRegistry, executor cipher.Executor) TicketRegistry {
	return &encodedRegistry{inner: inner, executor: executor}
}

// encodeID 加扰票据 ID，保留类型前缀供后端分类计数
func (r *encodedRegistry) encodeID(id string) string {
	kind := model.TicketKind(id)
	if kind == "" {
		return r.executor.SignID(id)
	}
	return kind + "-" + r.executor.SignID(id)
}

// encode 将票据加密为存储形态
func (r *encodedRegistry) encode(t model.Ticket) (model.Ticket, error) {
	_, body, err := model.MarshalTicket(t)
	if err != nil {
		return nil, err
	}
	ciphered, err := r.executor.Encrypt(body)
	if err != nil {
		return nil, err
	}
	return &encodedTicket{
		id:           r.encodeID(t.GetID()),
		kind:         t.Kind(),
		body:         ciphered,
		creationTime: t.GetCreationTime(),
		ttl:          ticketTTL(t),
	}, nil
}

// decode 解密还原票据
func (r *encodedRegistry) decode(t model.Ticket) (model.Ticket, error) {
	et, ok := t.(*encodedTicket)
	if !ok {
		// 后端返回了未加密的票据，原样透传
		return t, nil
	}
	plain, err := r.executor.Decrypt(et.body)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	decoded, err := model.UnmarshalTicket(et.kind, plain)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	return decoded, nil
}

// AddTicket 加密后写入
func (r *encodedRegistry) AddTicket(ctx context.Context, t model.Ticket) error {
	encoded, err := r.encode(t)
	if err != nil {
		return err
	}
	return r.inner.AddTicket(ctx, encoded)
}

// GetTicket 读取并解密
func (r *encodedRegistry) GetTicket(ctx context.Context, id, kind string) (model.Ticket, error) {
	stored, err := r.inner.GetTicket(ctx, r.encodeID(id), "")
	if err != nil {
		return nil, err
	}
	t, err := r.decode(stored)
	if err != nil {
		return nil, err
	}
	if kind != "" && t.Kind() != kind {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// UpdateTicket 加密后覆盖
func (r *encodedRegistry) UpdateTicket(ctx context.Context, t model.Ticket) error {
	encoded, err := r.encode(t)
	if err != nil {
		return err
	}
	return r.inner.UpdateTicket(ctx, encoded)
}

// DeleteSingleTicket 按加扰 ID 删除
// 清理器从枚举拿到的 ID 可能已是存储形态（无法解密的条目），按原样兜底再删一次
func (r *encodedRegistry) DeleteSingleTicket(ctx context.Context, id string) (bool, error) {
	existed, err := r.inner.DeleteSingleTicket(ctx, r.encodeID(id))
	if err != nil || existed {
		return existed, err
	}
	return r.inner.DeleteSingleTicket(ctx, id)
}

// DeleteAll 清空注册表
func (r *encodedRegistry) DeleteAll(ctx context.Context) (int64, error) {
	return r.inner.DeleteAll(ctx)
}

// GetTickets 枚举并解密
// 无法解密的条目（密文损坏、密钥轮换遗留）以存储形态参与枚举：
// 其过期判定按物理 TTL 进行，清理器据此将其删除，而不是永远滞留
func (r *encodedRegistry) GetTickets(ctx context.Context, pred func(model.Ticket) bool) ([]model.Ticket, error) {
	stored, err := r.inner.GetTickets(ctx, nil)
	if err != nil {
		return nil, err
	}
	var tickets []model.Ticket
	for _, s := range stored {
		t, err := r.decode(s)
		if err != nil {
			t = s
		}
		if pred == nil || pred(t) {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

// SessionCount 透传计数
func (r *encodedRegistry) SessionCount(ctx context.Context) (int64, error) {
	return r.inner.SessionCount(ctx)
}

// ServiceTicketCount 透传计数
func (r *encodedRegistry) ServiceTicketCount(ctx context.Context) (int64, error) {
	return r.inner.ServiceTicketCount(ctx)
}
