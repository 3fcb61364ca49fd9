// Package mfa 多因子认证提供方选择、旁路与上下文校验
package mfa

import (
	"context"
	"sort"
)

// Provider 多因子认证提供方
type Provider interface {
	// ID 提供方标识（同时用作认证上下文值）
	ID() string
	// Rank 排序权重，数值小者优先
	Rank() int
	// Available 提供方当前是否可用（外部依赖健康检查）
	Available(ctx context.Context) bool
}

// StaticProvider 静态配置的提供方
type StaticProvider struct {
	ProviderID string
	RankValue  int
	// Healthy 为空时视为始终可用
	Healthy func(ctx context.Context) bool
}

func (p *StaticProvider) ID() string { return p.ProviderID }

func (p *StaticProvider) Rank() int { return p.RankValue }

func (p *StaticProvider) Available(ctx context.Context) bool {
	if p.Healthy == nil {
		return true
	}
	return p.Healthy(ctx)
}

// RankProviders 返回按权重升序的副本，同权重按 ID 字典序保证确定性
func RankProviders(providers []Provider) []Provider {
	ranked := append([]Provider(nil), providers...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Rank() != ranked[j].Rank() {
			return ranked[i].Rank() < ranked[j].Rank()
		}
		return ranked[i].ID() < ranked[j].ID()
	})
	return ranked
}
