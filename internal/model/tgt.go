package model

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrNilAuthentication TGT 必须携带认证结果
var ErrNilAuthentication = errors.New("TGT 的认证结果不能为空")

// TicketGrantingTicket 票据授予票据（TGT）
// 代表一次已认证的 SSO 会话；代理链上的 TGT（PGT）持有父票据 ID。
// 并发授予同一 TGT 的服务票据由内部互斥锁串行化
type TicketGrantingTicket struct {
	mu sync.Mutex

	ID               string
	Auth             *Authentication
	ParentID         string
	Services         map[string]*Service // ST ID -> 已授予的服务
	ProxyGrantingIDs []string            // 由此 TGT 的 ST 派生出的 PGT
	CreationTime     time.Time
	LastTimeUsed     time.Time
	PreviousTimeUsed time.Time
	CountOfUses      int
	Expired          bool
	Policy           ExpirationPolicy

	// 内存中的父引用，仅用于认证链遍历，不参与序列化
	parent *TicketGrantingTicket
}

// NewTicketGrantingTicket 创建根 TGT
func NewTicketGrantingTicket(id string, auth *Authentication, policy ExpirationPolicy) (*TicketGrantingTicket, error) {
	if auth == nil {
		return nil, ErrNilAuthentication
	}
	if policy == nil {
		policy = NeverExpiresPolicy{}
	}
	return &TicketGrantingTicket{
		ID:           id,
		Auth:         auth,
		Services:     make(map[string]*Service),
		CreationTime: time.Now(),
		Policy:       policy,
	}, nil
}

// NewProxyGrantingTicket 创建代理授予票据（挂在父 TGT 之下）
func NewProxyGrantingTicket(id string, parent *TicketGrantingTicket, auth *Authentication, policy ExpirationPolicy) (*TicketGrantingTicket, error) {
	pgt, err := NewTicketGrantingTicket(id, auth, policy)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		pgt.ParentID = parent.ID
		pgt.parent = parent
	}
	return pgt, nil
}

// GetID 返回票据 ID
func (t *TicketGrantingTicket) GetID() string { return t.ID }

// Kind 返回票据类型
func (t *TicketGrantingTicket) Kind() string {
	if kind := TicketKind(t.ID); kind != "" {
		return kind
	}
	return PrefixTGT
}

// GetCreationTime 返回创建时间
func (t *TicketGrantingTicket) GetCreationTime() time.Time { return t.CreationTime }

// GetLastTimeUsed 返回上次使用时间
func (t *TicketGrantingTicket) GetLastTimeUsed() time.Time { return t.LastTimeUsed }

// GetPreviousTimeUsed 返回上上次使用时间
func (t *TicketGrantingTicket) GetPreviousTimeUsed() time.Time { return t.PreviousTimeUsed }

// GetCountOfUses 返回使用次数
func (t *TicketGrantingTicket) GetCountOfUses() int { return t.CountOfUses }

// GetAuthentication 返回认证结果
func (t *TicketGrantingTicket) GetAuthentication() *Authentication { return t.Auth }

// GetExpirationPolicy 返回过期策略
func (t *TicketGrantingTicket) GetExpirationPolicy() ExpirationPolicy { return t.Policy }

// IsRoot 是否为根 TGT（非代理链）
func (t *TicketGrantingTicket) IsRoot() bool { return t.ParentID == "" }

// IsExpired 检查是否过期（显式标记或策略判定）
func (t *TicketGrantingTicket) IsExpired() bool {
	if t.Expired {
		return true
	}
	return t.Policy != nil && t.Policy.IsExpired(t)
}

// MarkTicketExpired 显式标记过期
func (t *TicketGrantingTicket) MarkTicketExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Expired = true
}

// updateState 记录一次使用
func (t *TicketGrantingTicket) updateState() {
	t.PreviousTimeUsed = t.LastTimeUsed
	t.LastTimeUsed = time.Now()
	t.CountOfUses++
}

// GrantServiceTicket 为服务授予 ST
// onlyTrackMostRecent 时，归一化后等价的历史授予被替换（后写胜出）；
// fromNewLogin 仅当授予发生在首次认证时刻（或本次提交了凭据）为真
func (t *TicketGrantingTicket) GrantServiceTicket(id string, svc *Service, policy ExpirationPolicy,
	credentialProvided, onlyTrackMostRecent bool) *ServiceTicket {
	t.mu.Lock()
	defer t.mu.Unlock()

	fromNewLogin := t.CountOfUses == 0 || credentialProvided
	t.updateState()

	if onlyTrackMostRecent {
		for stID, granted := range t.Services {
			if granted.MatchesService(svc) {
				delete(t.Services, stID)
			}
		}
	}
	t.Services[id] = svc

	return NewServiceTicket(id, t.ID, svc, policy, fromNewLogin)
}

// GetServices 返回已授予服务的副本
func (t *TicketGrantingTicket) GetServices() map[string]*Service {
	t.mu.Lock()
	defer t.mu.Unlock()
	services := make(map[string]*Service, len(t.Services))
	for id, svc := range t.Services {
		services[id] = svc
	}
	return services
}

// RemoveAllServices 清空服务授予记录
func (t *TicketGrantingTicket) RemoveAllServices() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Services = make(map[string]*Service)
}

// TrackProxyGrantingTicket 记录派生的 PGT，供级联销毁
func (t *TicketGrantingTicket) TrackProxyGrantingTicket(pgtID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ProxyGrantingIDs = append(t.ProxyGrantingIDs, pgtID)
}

// SetParent 设置内存中的父引用（注册表重建链时使用）
func (t *TicketGrantingTicket) SetParent(parent *TicketGrantingTicket) {
	t.parent = parent
	if parent != nil && t.ParentID == "" {
		t.ParentID = parent.ID
	}
}

// GetParent 返回内存中的父引用，可能为空
func (t *TicketGrantingTicket) GetParent() *TicketGrantingTicket { return t.parent }

// GetChainedAuthentications 返回代理链上的认证结果，按创建顺序（根在前）
func (t *TicketGrantingTicket) GetChainedAuthentications() []*Authentication {
	if t.parent == nil {
		return []*Authentication{t.Auth}
	}
	return append(t.parent.GetChainedAuthentications(), t.Auth)
}

// tgtJSON 序列化别名
type tgtJSON struct {
	ID               string              `json:"id"`
	Auth             *Authentication     `json:"authentication"`
	ParentID         string              `json:"parent_id,omitempty"`
	Services         map[string]*Service `json:"services,omitempty"`
	ProxyGrantingIDs []string            `json:"proxy_granting_ids,omitempty"`
	CreationTime     time.Time           `json:"creation_time"`
	LastTimeUsed     time.Time           `json:"last_time_used"`
	PreviousTimeUsed time.Time           `json:"previous_time_used"`
	CountOfUses      int                 `json:"count_of_uses"`
	Expired          bool                `json:"expired"`
	Policy           json.RawMessage     `json:"policy"`
}

// MarshalJSON 实现 json.Marshaler
func (t *TicketGrantingTicket) MarshalJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	policy, err := MarshalPolicy(t.Policy)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tgtJSON{
		ID:               t.ID,
		Auth:             t.Auth,
		ParentID:         t.ParentID,
		Services:         t.Services,
		ProxyGrantingIDs: t.ProxyGrantingIDs,
		CreationTime:     t.CreationTime,
		LastTimeUsed:     t.LastTimeUsed,
		PreviousTimeUsed: t.PreviousTimeUsed,
		CountOfUses:      t.CountOfUses,
		Expired:          t.Expired,
		Policy:           policy,
	})
}

// UnmarshalJSON 实现 json.Unmarshaler
func (t *TicketGrantingTicket) UnmarshalJSON(data []byte) error {
	var aux tgtJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	policy, err := UnmarshalPolicy(aux.Policy)
	if err != nil {
		return err
	}
	t.ID = aux.ID
	t.Auth = aux.Auth
	t.ParentID = aux.ParentID
	t.Services = aux.Services
	if t.Services == nil {
		t.Services = make(map[string]*Service)
	}
	t.ProxyGrantingIDs = aux.ProxyGrantingIDs
	t.CreationTime = aux.CreationTime
	t.LastTimeUsed = aux.LastTimeUsed
	t.PreviousTimeUsed = aux.PreviousTimeUsed
	t.CountOfUses = aux.CountOfUses
	t.Expired = aux.Expired
	t.Policy = policy
	return nil
}
