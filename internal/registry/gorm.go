package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormRegistry 数据库注册表
// 每张票据一行（ID、类型、序列化体、物理过期时间），见 model.TicketRecord
type gormRegistry struct {
	db *gorm.DB
}

// NewGorm 创建数据库注册表
func NewGorm(db *gorm.DB) TicketRegistry {
	return &gormRegistry{db: db}
}

// toRecord 将票据转换为存储行
func toRecord(t model.Ticket) (*model.TicketRecord, error) {
	data, err := marshalStored(t)
	if err != nil {
		return nil, err
	}
	record := &model.TicketRecord{
		ID:   t.GetID(),
		Kind: t.Kind(),
		Body: data,
	}
	if ttl := ticketTTL(t); ttl > 0 {
		expiresAt := time.Now().Add(ttl)
		record.ExpiresAt = &expiresAt
	}
	return record, nil
}

// AddTicket 存储新票据
func (r *gormRegistry) AddTicket(ctx context.Context, t model.Ticket) error {
	record, err := toRecord(t)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTicket
		}
		return fmt.Errorf("存储票据失败: %w", err)
	}
	return nil
}

// GetTicket 按 ID 取票据；物理过期的行视为不存在
func (r *gormRegistry) GetTicket(ctx context.Context, id, kind string) (model.Ticket, error) {
	var record model.TicketRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("获取票据失败: %w", err)
	}
	if record.ExpiresAt != nil && time.Now().After(*record.ExpiresAt) {
		return nil, ErrTicketNotFound
	}
	t, err := unmarshalStored(record.ID, record.Body)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	if kind != "" && t.Kind() != kind {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// UpdateTicket 整体覆盖
func (r *gormRegistry) UpdateTicket(ctx context.Context, t model.Ticket) error {
	record, err := toRecord(t)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error; err != nil {
		return fmt.Errorf("更新票据失败: %w", err)
	}
	return nil
}

// DeleteSingleTicket 幂等删除
func (r *gormRegistry) DeleteSingleTicket(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TicketRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("删除票据失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteAll 清空注册表
func (r *gormRegistry) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&model.TicketRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("清空注册表失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetTickets 枚举票据（分批读取，弱一致）
func (r *gormRegistry) GetTickets(ctx context.Context, pred func(model.Ticket) bool) ([]model.Ticket, error) {
	var tickets []model.Ticket
	var records []model.TicketRecord
	err := r.db.WithContext(ctx).FindInBatches(&records, 200, func(tx *gorm.DB, batch int) error {
		for _, record := range records {
			t, err := unmarshalStored(record.ID, record.Body)
			if err != nil {
				continue
			}
			if pred == nil || pred(t) {
				tickets = append(tickets, t)
			}
		}
		return nil
	}).Error
	if err != nil {
		return nil, fmt.Errorf("枚举票据失败: %w", err)
	}
	return tickets, nil
}

// SessionCount 统计 TGT/PGT 数量（数据库原生计数）
func (r *gormRegistry) SessionCount(ctx context.Context) (int64, error) {
	return r.countByKind(ctx, model.PrefixTGT, model.PrefixPGT)
}

// ServiceTicketCount 统计 ST/PT 数量
func (r *gormRegistry) ServiceTicketCount(ctx context.Context) (int64, error) {
	return r.countByKind(ctx, model.PrefixST, model.PrefixPT)
}

func (r *gormRegistry) countByKind(ctx context.Context, kinds ...string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.TicketRecord{}).Where("kind IN ?", kinds).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("统计票据失败: %w", err)
	}
	return count, nil
}
