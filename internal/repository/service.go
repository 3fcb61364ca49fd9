package repository

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"gorm.io/gorm"
)

// ErrServiceNotFound 服务定义不存在
var ErrServiceNotFound = errors.New("服务定义不存在")

// ServiceRepository 注册服务定义的数据访问契约
// 服务管理器通过 LoadAll 全量加载并在内存中维护快照
type ServiceRepository interface {
	Save(ctx context.Context, svc *model.RegisteredService) error
	GetByID(ctx context.Context, id int64) (*model.RegisteredService, error)
	Delete(ctx context.Context, id int64) error
	LoadAll(ctx context.Context) ([]*model.RegisteredService, error)
	Count(ctx context.Context) (int64, error)
}

type serviceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) ServiceRepository {
	return &serviceRepository{db: db}
}

// Save 新建或整体覆盖（以主键区分）
func (r *serviceRepository) Save(ctx context.Context, svc *model.RegisteredService) error {
	return r.db.WithContext(ctx).Save(svc).Error
}

func (r *serviceRepository) GetByID(ctx context.Context, id int64) (*model.RegisteredService, error) {
	var svc model.RegisteredService
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&svc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &svc, nil
}

func (r *serviceRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.RegisteredService{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (r *serviceRepository) LoadAll(ctx context.Context) ([]*model.RegisteredService, error) {
	var services []*model.RegisteredService
	err := r.db.WithContext(ctx).Order("evaluation_order ASC, id ASC").Find(&services).Error
	return services, err
}

func (r *serviceRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RegisteredService{}).Count(&count).Error
	return count, err
}
