package registry

import (
	"context"
	"time"

	"github.com/pu-ac-cn/sso-core/internal/model"
	"go.uber.org/zap"
)

// CleanerConfig 清理器配置
type CleanerConfig struct {
	InitialDelay time.Duration // 预热延迟，默认 10 秒
	Interval     time.Duration // 清理周期，默认 1 分钟
}

// Cleaner 过期票据后台清理器
// 独立于请求处理协程运行；逐张删除过期票据，不持有全表锁，
// 单张票据的删除失败不会中断整轮清理
type Cleaner struct {
	registry TicketRegistry
	config   CleanerConfig
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewCleaner 创建清理器
func NewCleaner(registry TicketRegistry, config CleanerConfig, logger *zap.Logger) *Cleaner {
	if config.InitialDelay <= 0 {
		config.InitialDelay = 10 * time.Second
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{
		registry: registry,
		config:   config,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动后台清理协程
func (c *Cleaner) Start(ctx context.Context) {
	go func() {
		defer close(c.done)

		select {
		case <-time.After(c.config.InitialDelay):
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()

		for {
			c.Sweep(ctx)
			select {
			case <-ticker.C:
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop 停止清理器并等待当前轮次结束
func (c *Cleaner) Stop() {
	close(c.stop)
	<-c.done
}

// Sweep 执行一轮清理，返回删除数量
func (c *Cleaner) Sweep(ctx context.Context) int {
	expired, err := c.registry.GetTickets(ctx, func(t model.Ticket) bool {
		return t.IsExpired()
	})
	if err != nil {
		c.logger.Warn("枚举过期票据失败", zap.Error(err))
		return 0
	}

	removed := 0
	for _, t := range expired {
		// 与并发读取竞争时，删除已被消费的票据是空操作
		deleted, err := c.registry.DeleteSingleTicket(ctx, t.GetID())
		if err != nil {
			c.logger.Warn("删除过期票据失败",
				zap.String("ticket_id", t.GetID()),
				zap.Error(err))
			continue
		}
		if deleted {
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("清理过期票据",
			zap.Int("removed", removed),
			zap.Int("candidates", len(expired)))
	}
	return removed
}
