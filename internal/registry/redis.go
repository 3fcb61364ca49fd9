package registry

import (
	"context"
	"fmt"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/redis/go-redis/v9"
)

// Redis key 前缀
const ticketKeyPrefix = "ticket:"

// redisRegistry Redis 注册表
// 依赖 Redis 原生 TTL 做物理过期；键名 = 前缀 + 票据 ID
type redisRegistry struct {
	client *redis.Client
}

// NewRedis 创建 Redis 注册表
func NewRedis(client *redis.Client) TicketRegistry {
	return &redisRegistry{client: client}
}

func ticketKey(id string) string {
	return ticketKeyPrefix + id
}

// AddTicket 存储新票据（SETNX 保证同 ID 只有一次成功写入）
func (r *redisRegistry) AddTicket(ctx context.Context, t model.Ticket) error {
	data, err := marshalStored(t)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, ticketKey(t.GetID()), data, ticketTTL(t)).Result()
	if err != nil {
		return fmt.Errorf("存储票据失败: %w", err)
	}
	if !ok {
		return ErrDuplicateTicket
	}
	return nil
}

// GetTicket 按 ID 取票据
func (r *redisRegistry) GetTicket(ctx context.Context, id, kind string) (model.Ticket, error) {
	data, err := r.client.Get(ctx, ticketKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("获取票据失败: %w", err)
	}
	t, err := unmarshalStored(id, data)
	if err != nil {
		// 损坏的存储条目等同于不存在
		return nil, ErrTicketNotFound
	}
	if kind != "" && t.Kind() != kind {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// UpdateTicket 整体覆盖（后写胜出）
func (r *redisRegistry) UpdateTicket(ctx context.Context, t model.Ticket) error {
	data, err := marshalStored(t)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, ticketKey(t.GetID()), data, ticketTTL(t)).Err(); err != nil {
		return fmt.Errorf("更新票据失败: %w", err)
	}
	return nil
}

// DeleteSingleTicket 幂等删除
func (r *redisRegistry) DeleteSingleTicket(ctx context.Context, id string) (bool, error) {
	deleted, err := r.client.Del(ctx, ticketKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("删除票据失败: %w", err)
	}
	return deleted > 0, nil
}

// DeleteAll 清空注册表
func (r *redisRegistry) DeleteAll(ctx context.Context) (int64, error) {
	var count int64
	iter := r.client.Scan(ctx, 0, ticketKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		deleted, err := r.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return count, fmt.Errorf("删除票据失败: %w", err)
		}
		count += deleted
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("枚举票据失败: %w", err)
	}
	return count, nil
}

// GetTickets 枚举票据（SCAN 弱一致遍历）
func (r *redisRegistry) GetTickets(ctx context.Context, pred func(model.Ticket) bool) ([]model.Ticket, error) {
	var tickets []model.Ticket
	iter := r.client.Scan(ctx, 0, ticketKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			// 遍历期间被删除或过期的键直接跳过
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("获取票据失败: %w", err)
		}
		t, err := unmarshalStored(key[len(ticketKeyPrefix):], data)
		if err != nil {
			continue
		}
		if pred == nil || pred(t) {
			tickets = append(tickets, t)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("枚举票据失败: %w", err)
	}
	return tickets, nil
}

// SessionCount 统计 TGT/PGT 数量
func (r *redisRegistry) SessionCount(ctx context.Context) (int64, error) {
	return r.countByPrefix(ctx, model.PrefixTGT, model.PrefixPGT)
}

// ServiceTicketCount 统计 ST/PT 数量
func (r *redisRegistry) ServiceTicketCount(ctx context.Context) (int64, error) {
	return r.countByPrefix(ctx, model.PrefixST, model.PrefixPT)
}

// countByPrefix 按票据前缀扫描计数
func (r *redisRegistry) countByPrefix(ctx context.Context, prefixes ...string) (int64, error) {
	var count int64
	for _, prefix := range prefixes {
		iter := r.client.Scan(ctx, 0, ticketKeyPrefix+prefix+"-*", 100).Iterator()
		for iter.Next(ctx) {
			count++
		}
		if err := iter.Err(); err != nil {
			return 0, fmt.Errorf("统计票据失败: %w", err)
		}
	}
	return count, nil
}
