package authn

import "errors"

// transactionState 策略判定所见的事务中间态
type transactionState struct {
	// successes 按执行顺序记录成功的处理器名
	successes []string
	// failures 处理器名 -> 失败原因
	failures map[string]error
}

func newTransactionState() *transactionState {
	return &transactionState{failures: make(map[string]error)}
}

func (s *transactionState) recordSuccess(handlerName string) {
	s.successes = append(s.successes, handlerName)
}

func (s *transactionState) recordFailure(handlerName string, err error) {
	s.failures[handlerName] = err
}

func (s *transactionState) succeeded(handlerName string) bool {
	for _, name := range s.successes {
		if name == handlerName {
			return true
		}
	}
	return false
}

// Policy 认证成功策略
// 在事务内所有候选处理器执行完毕后判定整体结果；
// ShortCircuit 为真时，任一处理器成功即停止调用剩余处理器
type Policy interface {
	// Name 策略名
	Name() string
	// Satisfied 判定事务是否成功
	Satisfied(state *transactionState) bool
	// ShortCircuit 首个成功后是否跳过剩余处理器
	ShortCircuit() bool
}

// AnyPolicy 任一处理器成功即成功
// tryAll 为假时短路：首个成功后不再调用剩余处理器
type AnyPolicy struct {
	TryAll bool
}

func (p AnyPolicy) Name() string { return "any" }

func (p AnyPolicy) Satisfied(state *transactionState) bool {
	return len(state.successes) > 0
}

func (p AnyPolicy) ShortCircuit() bool { return !p.TryAll }

// AllPolicy 所有被尝试的处理器都成功才算成功
type AllPolicy struct{}

func (AllPolicy) Name() string { return "all" }

func (AllPolicy) Satisfied(state *transactionState) bool {
	return len(state.successes) > 0 && len(state.failures) == 0
}

func (AllPolicy) ShortCircuit() bool { return false }

// RequiredHandlerPolicy 指定处理器成功即成功，其余结果不影响判定
type RequiredHandlerPolicy struct {
	HandlerName string
	TryAll      bool
}

func (p RequiredHandlerPolicy) Name() string { return "required_handler" }

func (p RequiredHandlerPolicy) Satisfied(state *transactionState) bool {
	return state.succeeded(p.HandlerName)
}

func (p RequiredHandlerPolicy) ShortCircuit() bool { return !p.TryAll }

// NotPreventedPolicy 只要没有处理器报“不可用”且至少一个成功即成功
// 用于区分“凭据错误”与“处理器故障”
type NotPreventedPolicy struct{}

func (NotPreventedPolicy) Name() string { return "not_prevented" }

func (NotPreventedPolicy) Satisfied(state *transactionState) bool {
	for _, err := range state.failures {
		if errors.Is(err, ErrPrevented) {
			return false
		}
	}
	return len(state.successes) > 0
}

func (NotPreventedPolicy) ShortCircuit() bool { return false }
