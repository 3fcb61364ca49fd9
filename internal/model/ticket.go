// Package model 定义数据模型
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 票据 ID 前缀
const (
	PrefixTGT = "TGT" // Ticket Granting Ticket
	PrefixST  = "ST"  // Service Ticket
	PrefixPGT = "PGT" // Proxy Granting Ticket
	PrefixPT  = "PT"  // Proxy Ticket
)

// Ticket 票据通用接口
type Ticket interface {
	// GetID 返回票据 ID（含前缀）
	GetID() string
	// Kind 返回票据类型前缀（TGT/ST/PGT/PT）
	Kind() string
	// GetCreationTime 返回创建时间
	GetCreationTime() time.Time
	// GetCountOfUses 返回使用次数
	GetCountOfUses() int
	// GetExpirationPolicy 返回过期策略
	GetExpirationPolicy() ExpirationPolicy
	// IsExpired 检查票据是否过期（策略判定或被显式标记）
	IsExpired() bool
	// MarkTicketExpired 显式标记票据过期
	MarkTicketExpired()
}

// TicketState 过期策略判定所需的票据状态
type TicketState interface {
	GetCreationTime() time.Time
	GetLastTimeUsed() time.Time
	GetPreviousTimeUsed() time.Time
	GetCountOfUses() int
	// GetAuthentication 返回关联的认证结果（ST 为空）
	GetAuthentication() *Authentication
}

// NewTicketID 生成带前缀的票据 ID
func NewTicketID(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// TicketKind 从票据 ID 解析类型前缀，无法识别时返回空串
func TicketKind(id string) string {
	switch {
	case strings.HasPrefix(id, PrefixTGT+"-"):
		return PrefixTGT
	case strings.HasPrefix(id, PrefixPGT+"-"):
		return PrefixPGT
	case strings.HasPrefix(id, PrefixPT+"-"):
		return PrefixPT
	case strings.HasPrefix(id, PrefixST+"-"):
		return PrefixST
	default:
		return ""
	}
}

// MarshalTicket 将票据序列化为 (类型, JSON)
func MarshalTicket(t Ticket) (string, []byte, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return "", nil, fmt.Errorf("序列化票据失败: %w", err)
	}
	return t.Kind(), body, nil
}

// UnmarshalTicket 根据类型反序列化票据
func UnmarshalTicket(kind string, body []byte) (Ticket, error) {
	switch kind {
	case PrefixTGT, PrefixPGT:
		var tgt TicketGrantingTicket
		if err := json.Unmarshal(body, &tgt); err != nil {
			return nil, fmt.Errorf("反序列化 TGT 失败: %w", err)
		}
		return &tgt, nil
	case PrefixST, PrefixPT:
		var st ServiceTicket
		if err := json.Unmarshal(body, &st); err != nil {
			return nil, fmt.Errorf("反序列化 ST 失败: %w", err)
		}
		return &st, nil
	default:
		return nil, fmt.Errorf("未知的票据类型: %s", kind)
	}
}
