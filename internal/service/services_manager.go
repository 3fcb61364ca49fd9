// Package service 核心业务编排：服务管理器与票据生命周期门面
package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"github.com/pu-ac-cn/sso-core/internal/repository"
	"go.uber.org/zap"
)

// ServicesManager 注册服务管理器
// 内存中维护按评估顺序排好的服务快照，查找走快照不加锁；
// 写入先落库再全量重载，快照整体原子替换
type ServicesManager struct {
	repo     repository.ServiceRepository
	logger   *zap.Logger
	snapshot atomic.Pointer[[]*model.RegisteredService]

	// 串行化写路径，避免并发 Save/Load 交错产生旧快照覆盖新快照
	writeMu sync.Mutex
}

// NewServicesManager 创建服务管理器（需随后调用 Load 预热快照）
func NewServicesManager(repo repository.ServiceRepository, logger *zap.Logger) *ServicesManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &ServicesManager{repo: repo, logger: logger}
	empty := make([]*model.RegisteredService, 0)
	m.snapshot.Store(&empty)
	return m
}

// Load 从存储全量重载服务定义并替换快照
func (m *ServicesManager) Load(ctx context.Context) error {
	services, err := m.repo.LoadAll(ctx)
	if err != nil {
		return err
	}
	// 快照内的定义只读共享，正则在此一次性编译；非法正则永不匹配
	for _, svc := range services {
		if err := svc.CompilePattern(); err != nil {
			m.logger.Warn("服务匹配正则非法",
				zap.Int64("id", svc.ID),
				zap.String("service_id", svc.ServiceID),
				zap.Error(err))
		}
	}
	sortServices(services)
	m.snapshot.Store(&services)
	m.logger.Info("服务注册表已加载", zap.Int("count", len(services)))
	return nil
}

// Save 保存服务定义并重载快照
func (m *ServicesManager) Save(ctx context.Context, svc *model.RegisteredService) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.repo.Save(ctx, svc); err != nil {
		return err
	}
	return m.Load(ctx)
}

// Delete 删除服务定义并重载快照
func (m *ServicesManager) Delete(ctx context.Context, id int64) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	return m.Load(ctx)
}

// FindServiceBy 按服务 URL 查找首个匹配的定义
// 候选按 evaluationOrder 升序、ID 升序评估，未匹配返回 nil
func (m *ServicesManager) FindServiceBy(serviceURL string) *model.RegisteredService {
	for _, svc := range *m.snapshot.Load() {
		if svc.Matches(serviceURL) {
			return svc
		}
	}
	return nil
}

// FindServiceByID 按主键查找
func (m *ServicesManager) FindServiceByID(id int64) *model.RegisteredService {
	for _, svc := range *m.snapshot.Load() {
		if svc.ID == id {
			return svc
		}
	}
	return nil
}

// All 返回当前快照（调用方不得修改）
func (m *ServicesManager) All() []*model.RegisteredService {
	return *m.snapshot.Load()
}

// Count 返回快照内的服务数
func (m *ServicesManager) Count() int {
	return len(*m.snapshot.Load())
}

// sortServices 评估顺序升序，同序按 ID 升序保证确定性
func sortServices(services []*model.RegisteredService) {
	sort.SliceStable(services, func(i, j int) bool {
		if services[i].EvaluationOrder != services[j].EvaluationOrder {
			return services[i].EvaluationOrder < services[j].EvaluationOrder
		}
		return services[i].ID < services[j].ID
	})
}
