// Package registry 票据注册表：存储无关的票据增删改查契约及其实现
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/model"
)

// 注册表相关错误
var (
	// ErrDuplicateTicket 同 ID 票据重复写入属于编程缺陷，直接失败
	ErrDuplicateTicket = errors.New("票据 ID 已存在")
	// ErrTicketNotFound 票据不存在（缺失、已清理或类型不匹配都折叠为此错误）
	ErrTicketNotFound = errors.New("票据不存在")
)

// TicketRegistry 票据注册表契约
// 单张票据 ID 是一致性单元：不同 ID 上的操作互不竞争；
// 同一票据的更新为“后写胜出”，不提供跨票据事务
type TicketRegistry interface {
	// AddTicket 存储新票据；同 ID 冲突返回 ErrDuplicateTicket
	AddTicket(ctx context.Context, t model.Ticket) error
	// GetTicket 按 ID 取票据；kind 非空时校验类型。
	// 缺失、已清理、类型不匹配、解码失败一律返回 ErrTicketNotFound
	GetTicket(ctx context.Context, id, kind string) (model.Ticket, error)
	// UpdateTicket 整体覆盖持久化表示（使用计数/时间更新后调用）
	UpdateTicket(ctx context.Context, t model.Ticket) error
	// DeleteSingleTicket 幂等删除；返回票据先前是否存在，删除不存在的票据不是错误
	DeleteSingleTicket(ctx context.Context, id string) (bool, error)
	// DeleteAll 管理性全量清空，返回删除数量；不在请求路径上使用
	DeleteAll(ctx context.Context) (int64, error)
	// GetTickets 弱一致地枚举票据；pred 为空时返回全部
	GetTickets(ctx context.Context, pred func(model.Ticket) bool) ([]model.Ticket, error)
	// SessionCount 当前 TGT/PGT 数量（健康监控用，允许近似）
	SessionCount(ctx context.Context) (int64, error)
	// ServiceTicketCount 当前 ST/PT 数量
	ServiceTicketCount(ctx context.Context) (int64, error)
}

// isGrantingKind TGT 与 PGT 计入会话数
func isGrantingKind(kind string) bool {
	return kind == model.PrefixTGT || kind == model.PrefixPGT
}

// ticketTTL 推导票据的物理存活时长（供支持原生 TTL 的后端使用）
// 取策略 TTL 与空闲超时中较长的一侧，0 表示不设置物理过期
func ticketTTL(t model.Ticket) time.Duration {
	policy := t.GetExpirationPolicy()
	if policy == nil {
		return 0
	}
	ttl := policy.TimeToLive()
	if idle := policy.TimeToIdle(); idle > ttl {
		ttl = idle
	}
	if ttl <= 0 {
		return 0
	}
	// 物理过期以创建时间为基准，留出余量交由清理器兜底
	deadline := t.GetCreationTime().Add(ttl)
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}
