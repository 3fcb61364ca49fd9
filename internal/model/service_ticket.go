package model

import (
	"encoding/json"
	"sync"
	"time"
)

// ServiceTicket 服务票据（ST/PT）
// 通过 TGTID 引用所属会话，避免对象间的循环引用；
// 默认单次使用，验证即消费
type ServiceTicket struct {
	mu sync.Mutex

	ID               string
	TGTID            string
	Service          *Service
	FromNewLogin     bool
	Reusable         bool
	CreationTime     time.Time
	LastTimeUsed     time.Time
	PreviousTimeUsed time.Time
	CountOfUses      int
	Expired          bool
	Policy           ExpirationPolicy
}

// NewServiceTicket 创建服务票据
func NewServiceTicket(id, tgtID string, svc *Service, policy ExpirationPolicy, fromNewLogin bool) *ServiceTicket {
	if policy == nil {
		policy = NeverExpiresPolicy{}
	}
	return &ServiceTicket{
		ID:           id,
		TGTID:        tgtID,
		Service:      svc,
		FromNewLogin: fromNewLogin,
		CreationTime: time.Now(),
		Policy:       policy,
	}
}

// GetID 返回票据 ID
func (st *ServiceTicket) GetID() string { return st.ID }

// Kind 返回票据类型
func (st *ServiceTicket) Kind() string {
	if kind := TicketKind(st.ID); kind != "" {
		return kind
	}
	return PrefixST
}

// GetCreationTime 返回创建时间
func (st *ServiceTicket) GetCreationTime() time.Time { return st.CreationTime }

// GetLastTimeUsed 返回上次使用时间
func (st *ServiceTicket) GetLastTimeUsed() time.Time { return st.LastTimeUsed }

// GetPreviousTimeUsed 返回上上次使用时间
func (st *ServiceTicket) GetPreviousTimeUsed() time.Time { return st.PreviousTimeUsed }

// GetCountOfUses 返回使用次数
func (st *ServiceTicket) GetCountOfUses() int { return st.CountOfUses }

// GetAuthentication ST 不直接持有认证结果
func (st *ServiceTicket) GetAuthentication() *Authentication { return nil }

// GetExpirationPolicy 返回过期策略
func (st *ServiceTicket) GetExpirationPolicy() ExpirationPolicy { return st.Policy }

// IsExpired 检查是否过期
func (st *ServiceTicket) IsExpired() bool {
	if st.Expired {
		return true
	}
	return st.Policy != nil && st.Policy.IsExpired(st)
}

// MarkTicketExpired 显式标记过期
func (st *ServiceTicket) MarkTicketExpired() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Expired = true
}

// Consume 记录一次使用；不可复用的票据同时被标记过期
func (st *ServiceTicket) Consume() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.PreviousTimeUsed = st.LastTimeUsed
	st.LastTimeUsed = time.Now()
	st.CountOfUses++
	if !st.Reusable {
		st.Expired = true
	}
}

// MatchesService 检查票据是否授予给了该服务
func (st *ServiceTicket) MatchesService(svc *Service) bool {
	return st.Service != nil && st.Service.MatchesService(svc)
}

// stJSON 序列化别名
type stJSON struct {
	ID               string          `json:"id"`
	TGTID            string          `json:"tgt_id"`
	Service          *Service        `json:"service"`
	FromNewLogin     bool            `json:"from_new_login"`
	Reusable         bool            `json:"reusable"`
	CreationTime     time.Time       `json:"creation_time"`
	LastTimeUsed     time.Time       `json:"last_time_used"`
	PreviousTimeUsed time.Time       `json:"previous_time_used"`
	CountOfUses      int             `json:"count_of_uses"`
	Expired          bool            `json:"expired"`
	Policy           json.RawMessage `json:"policy"`
}

// MarshalJSON 实现 json.Marshaler
func (st *ServiceTicket) MarshalJSON() ([]byte, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	policy, err := MarshalPolicy(st.Policy)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stJSON{
		ID:               st.ID,
		TGTID:            st.TGTID,
		Service:          st.Service,
		FromNewLogin:     st.FromNewLogin,
		Reusable:         st.Reusable,
		CreationTime:     st.CreationTime,
		LastTimeUsed:     st.LastTimeUsed,
		PreviousTimeUsed: st.PreviousTimeUsed,
		CountOfUses:      st.CountOfUses,
		Expired:          st.Expired,
		Policy:           policy,
	})
}

// UnmarshalJSON 实现 json.Unmarshaler
func (st *ServiceTicket) UnmarshalJSON(data []byte) error {
	var aux stJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	policy, err := UnmarshalPolicy(aux.Policy)
	if err != nil {
		return err
	}
	st.ID = aux.ID
	st.TGTID = aux.TGTID
	st.Service = aux.Service
	st.FromNewLogin = aux.FromNewLogin
	st.Reusable = aux.Reusable
	st.CreationTime = aux.CreationTime
	st.LastTimeUsed = aux.LastTimeUsed
	st.PreviousTimeUsed = aux.PreviousTimeUsed
	st.CountOfUses = aux.CountOfUses
	st.Expired = aux.Expired
	st.Policy = policy
	return nil
}
