// Package authn 认证处理器链与策略引擎
package authn

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// 凭据拒绝类错误
// 在事务边界内全部可恢复：逐处理器收集，最终以聚合错误返回
var (
	ErrAccountNotFound       = errors.New("账户不存在")
	ErrFailedLogin           = errors.New("用户名或密码错误")
	ErrAccountDisabled       = errors.New("账户已禁用")
	ErrAccountExpired        = errors.New("账户已过期")
	ErrCredentialExpired     = errors.New("凭据已过期")
	ErrUnsupportedCredential = errors.New("不支持的凭据类型")
	// ErrPrevented 处理器不可用（外部目录超时等），与凭据错误区分
	ErrPrevented = errors.New("认证处理器不可用")
)

// ErrNoSupportedHandler 没有处理器声明支持该凭据
var ErrNoSupportedHandler = errors.New("没有可处理该凭据的认证处理器")

// Error 认证事务聚合错误
// 携带完整的逐处理器失败映射，调用方可据此渲染具体原因；
// 单个处理器的错误从不被吞掉后单独抛出
type Error struct {
	// Failures 处理器名 -> 失败原因
	Failures map[string]error
}

// NewError 创建聚合错误
func NewError(failures map[string]error) *Error {
	if failures == nil {
		failures = make(map[string]error)
	}
	return &Error{Failures: failures}
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if len(e.Failures) == 0 {
		return "认证失败"
	}
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("认证失败: ")
	for i, name := range names {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s: %v", name, e.Failures[name])
	}
	return sb.String()
}

// HasFailure 检查是否存在指定类型的失败
func (e *Error) HasFailure(target error) bool {
	for _, err := range e.Failures {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
