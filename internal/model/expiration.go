package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExpirationPolicy 票据过期策略
// 策略在票据创建时绑定，之后不再更换
type ExpirationPolicy interface {
	// IsExpired 判定给定状态的票据是否过期
	IsExpired(state TicketState) bool
	// TimeToLive 绝对存活时长，0 表示不限制
	TimeToLive() time.Duration
	// TimeToIdle 空闲超时时长，0 表示不限制
	TimeToIdle() time.Duration
	// PolicyName 策略名（用于序列化）
	PolicyName() string
}

// 策略名常量
const (
	policyNever        = "never"
	policyHardTimeout  = "hard_timeout"
	policyIdleTimeout  = "idle_timeout"
	policyThrottledUse = "throttled_use"
	policyMulti        = "multi"
	policyRememberMe   = "remember_me"
)

// NeverExpiresPolicy 永不过期策略
type NeverExpiresPolicy struct{}

func (NeverExpiresPolicy) IsExpired(TicketState) bool { return false }
func (NeverExpiresPolicy) TimeToLive() time.Duration  { return 0 }
func (NeverExpiresPolicy) TimeToIdle() time.Duration  { return 0 }
func (NeverExpiresPolicy) PolicyName() string         { return policyNever }

// HardTimeoutPolicy 绝对超时策略：自创建起超过 TTL 即过期
type HardTimeoutPolicy struct {
	TTL time.Duration
}

func (p HardTimeoutPolicy) IsExpired(state TicketState) bool {
	return time.Now().After(state.GetCreationTime().Add(p.TTL))
}
func (p HardTimeoutPolicy) TimeToLive() time.Duration { return p.TTL }
func (p HardTimeoutPolicy) TimeToIdle() time.Duration { return 0 }
func (p HardTimeoutPolicy) PolicyName() string        { return policyHardTimeout }

// IdleTimeoutPolicy 空闲超时策略：自上次使用起超过 Idle 即过期
type IdleTimeoutPolicy struct {
	Idle time.Duration
}

func (p IdleTimeoutPolicy) IsExpired(state TicketState) bool {
	last := state.GetLastTimeUsed()
	if last.IsZero() {
		last = state.GetCreationTime()
	}
	return time.Now().After(last.Add(p.Idle))
}
func (p IdleTimeoutPolicy) TimeToLive() time.Duration { return 0 }
func (p IdleTimeoutPolicy) TimeToIdle() time.Duration { return p.Idle }
func (p IdleTimeoutPolicy) PolicyName() string        { return policyIdleTimeout }

// ThrottledUsePolicy 限次使用策略：使用次数达到上限或窗口内未使用即过期
// 这是 Service Ticket 的默认策略（单次使用 + 短窗口）
type ThrottledUsePolicy struct {
	MaxUses int
	Window  time.Duration
}

func (p ThrottledUsePolicy) IsExpired(state TicketState) bool {
	if p.MaxUses > 0 && state.GetCountOfUses() >= p.MaxUses {
		return true
	}
	last := state.GetLastTimeUsed()
	if last.IsZero() {
		last = state.GetCreationTime()
	}
	return p.Window > 0 && time.Now().After(last.Add(p.Window))
}
func (p ThrottledUsePolicy) TimeToLive() time.Duration { return p.Window }
func (p ThrottledUsePolicy) TimeToIdle() time.Duration { return p.Window }
func (p ThrottledUsePolicy) PolicyName() string        { return policyThrottledUse }

// MultiPolicy 组合策略：任一子策略判定过期即过期（取最短生命周期）
type MultiPolicy struct {
	Policies []ExpirationPolicy
}

func (p MultiPolicy) IsExpired(state TicketState) bool {
	for _, child := range p.Policies {
		if child.IsExpired(state) {
			return true
		}
	}
	return false
}

func (p MultiPolicy) TimeToLive() time.Duration {
	var min time.Duration
	for _, child := range p.Policies {
		ttl := child.TimeToLive()
		if ttl > 0 && (min == 0 || ttl < min) {
			min = ttl
		}
	}
	return min
}

func (p MultiPolicy) TimeToIdle() time.Duration {
	var min time.Duration
	for _, child := range p.Policies {
		idle := child.TimeToIdle()
		if idle > 0 && (min == 0 || idle < min) {
			min = idle
		}
	}
	return min
}
func (p MultiPolicy) PolicyName() string { return policyMulti }

// RememberMePolicy 记住我策略：认证要求持久会话时采用较长 TTL，否则委托默认策略
type RememberMePolicy struct {
	RememberTTL time.Duration
	Default     ExpirationPolicy
}

func (p RememberMePolicy) IsExpired(state TicketState) bool {
	auth := state.GetAuthentication()
	if auth != nil && auth.BoolAttribute(AttrRememberMe) {
		return time.Now().After(state.GetCreationTime().Add(p.RememberTTL))
	}
	if p.Default == nil {
		return false
	}
	return p.Default.IsExpired(state)
}

func (p RememberMePolicy) TimeToLive() time.Duration {
	// 取较长的一侧，保证持久会话在物理 TTL 内不被后端提前清除
	if p.Default != nil && p.Default.TimeToLive() > p.RememberTTL {
		return p.Default.TimeToLive()
	}
	return p.RememberTTL
}

func (p RememberMePolicy) TimeToIdle() time.Duration {
	if p.Default == nil {
		return 0
	}
	return p.Default.TimeToIdle()
}
func (p RememberMePolicy) PolicyName() string { return policyRememberMe }

// policyEnvelope 过期策略序列化信封
type policyEnvelope struct {
	Name        string           `json:"name"`
	TTL         time.Duration    `json:"ttl,omitempty"`
	Idle        time.Duration    `json:"idle,omitempty"`
	MaxUses     int              `json:"max_uses,omitempty"`
	Window      time.Duration    `json:"window,omitempty"`
	RememberTTL time.Duration    `json:"remember_ttl,omitempty"`
	Children    []policyEnvelope `json:"children,omitempty"`
}

// envelopeOf 将策略转换为信封
func envelopeOf(p ExpirationPolicy) (policyEnvelope, error) {
	switch v := p.(type) {
	case NeverExpiresPolicy, *NeverExpiresPolicy:
		return policyEnvelope{Name: policyNever}, nil
	case HardTimeoutPolicy:
		return policyEnvelope{Name: policyHardTimeout, TTL: v.TTL}, nil
	case *HardTimeoutPolicy:
		return policyEnvelope{Name: policyHardTimeout, TTL: v.TTL}, nil
	case IdleTimeoutPolicy:
		return policyEnvelope{Name: policyIdleTimeout, Idle: v.Idle}, nil
	case *IdleTimeoutPolicy:
		return policyEnvelope{Name: policyIdleTimeout, Idle: v.Idle}, nil
	case ThrottledUsePolicy:
		return policyEnvelope{Name: policyThrottledUse, MaxUses: v.MaxUses, Window: v.Window}, nil
	case *ThrottledUsePolicy:
		return policyEnvelope{Name: policyThrottledUse, MaxUses: v.MaxUses, Window: v.Window}, nil
	case MultiPolicy:
		return multiEnvelope(v)
	case *MultiPolicy:
		return multiEnvelope(*v)
	case RememberMePolicy:
		return rememberMeEnvelope(v)
	case *RememberMePolicy:
		return rememberMeEnvelope(*v)
	default:
		return policyEnvelope{}, fmt.Errorf("无法序列化的过期策略: %T", p)
	}
}

func multiEnvelope(p MultiPolicy) (policyEnvelope, error) {
	env := policyEnvelope{Name: policyMulti}
	for _, child := range p.Policies {
		ce, err := envelopeOf(child)
		if err != nil {
			return policyEnvelope{}, err
		}
		env.Children = append(env.Children, ce)
	}
	return env, nil
}

func rememberMeEnvelope(p RememberMePolicy) (policyEnvelope, error) {
	env := policyEnvelope{Name: policyRememberMe, RememberTTL: p.RememberTTL}
	if p.Default != nil {
		ce, err := envelopeOf(p.Default)
		if err != nil {
			return policyEnvelope{}, err
		}
		env.Children = []policyEnvelope{ce}
	}
	return env, nil
}

// policyFromEnvelope 从信封还原策略
func policyFromEnvelope(env policyEnvelope) (ExpirationPolicy, error) {
	switch env.Name {
	case policyNever, "":
		return NeverExpiresPolicy{}, nil
	case policyHardTimeout:
		return HardTimeoutPolicy{TTL: env.TTL}, nil
	case policyIdleTimeout:
		return IdleTimeoutPolicy{Idle: env.Idle}, nil
	case policyThrottledUse:
		return ThrottledUsePolicy{MaxUses: env.MaxUses, Window: env.Window}, nil
	case policyMulti:
		multi := MultiPolicy{}
		for _, ce := range env.Children {
			child, err := policyFromEnvelope(ce)
			if err != nil {
				return nil, err
			}
			multi.Policies = append(multi.Policies, child)
		}
		return multi, nil
	case policyRememberMe:
		p := RememberMePolicy{RememberTTL: env.RememberTTL}
		if len(env.Children) > 0 {
			child, err := policyFromEnvelope(env.Children[0])
			if err != nil {
				return nil, err
			}
			p.Default = child
		}
		return p, nil
	default:
		return nil, fmt.Errorf("未知的过期策略: %s", env.Name)
	}
}

// MarshalPolicy 序列化过期策略
func MarshalPolicy(p ExpirationPolicy) ([]byte, error) {
	env, err := envelopeOf(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalPolicy 反序列化过期策略
func UnmarshalPolicy(data []byte) (ExpirationPolicy, error) {
	var env policyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析过期策略失败: %w", err)
	}
	return policyFromEnvelope(env)
}
