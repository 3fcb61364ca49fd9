package registry

import (
	"context"
	"sync"

	"github.com/pu-ac-cn/sso-core/internal/model"
)

// memoryRegistry 内存注册表
// 显式读写锁保护票据表；枚举时先拷贝快照再释放锁，
// 读者不会观察到与底层存储不一致的条目
type memoryRegistry struct {
	mu      sync.RWMutex
	tickets map[string]model.Ticket
}

// NewMemory 创建内存注册表
func NewMemory() TicketRegistry {
	return &memoryRegistry{
		tickets: make(map[string]model.Ticket),
	}
}

// AddTicket 存储新票据
func (r *memoryRegistry) AddTicket(ctx context.Context, t model.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[t.GetID()]; exists {
		return ErrDuplicateTicket
	}
	r.tickets[t.GetID()] = t
	return nil
}

// GetTicket 按 ID 取票据
func (r *memoryRegistry) GetTicket(ctx context.Context, id, kind string) (model.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, exists := r.tickets[id]
	if !exists {
		return nil, ErrTicketNotFound
	}
	if kind != "" && t.Kind() != kind {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// UpdateTicket 覆盖票据
func (r *memoryRegistry) UpdateTicket(ctx context.Context, t model.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.GetID()] = t
	return nil
}

// DeleteSingleTicket 幂等删除
func (r *memoryRegistry) DeleteSingleTicket(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.tickets[id]
	delete(r.tickets, id)
	return exists, nil
}

// DeleteAll 清空注册表
func (r *memoryRegistry) DeleteAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := int64(len(r.tickets))
	r.tickets = make(map[string]model.Ticket)
	return count, nil
}

// GetTickets 枚举票据（弱一致快照）
func (r *memoryRegistry) GetTickets(ctx context.Context, pred func(model.Ticket) bool) ([]model.Ticket, error) {
	r.mu.RLock()
	snapshot := make([]model.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		snapshot = append(snapshot, t)
	}
	r.mu.RUnlock()

	if pred == nil {
		return snapshot, nil
	}
	matched := snapshot[:0]
	for _, t := range snapshot {
		if pred(t) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// SessionCount 统计 TGT/PGT 数量
func (r *memoryRegistry) SessionCount(ctx context.Context) (int64, error) {
	return r.countByKind(isGrantingKind), nil
}

// ServiceTicketCount 统计 ST/PT 数量
func (r *memoryRegistry) ServiceTicketCount(ctx context.Context) (int64, error) {
	return r.countByKind(func(kind string) bool { return !isGrantingKind(kind) }), nil
}

func (r *memoryRegistry) countByKind(match func(string) bool) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, t := range r.tickets {
		if match(t.Kind()) {
			count++
		}
	}
	return count
}
