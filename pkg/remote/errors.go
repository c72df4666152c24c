package remote

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// 错误分类，使用 errors.Is 判断（经过 Wrap 仍然有效）
var (
	// ErrConfig 配置错误，绑定阶段发现，不可重试
	ErrConfig = errors.New("remote: configuration error")
	// ErrConnection 无法建立或复用连接
	ErrConnection = errors.New("remote: connection error")
	// ErrSerialization 请求或响应体编解码失败
	ErrSerialization = errors.New("remote: serialization error")
	// ErrInvocation 处理方法返回了错误
	ErrInvocation = errors.New("remote: invocation error")
)

// RemotingError 对端返回了非 200 状态
type RemotingError struct {
	Host       string
	Port       int
	Path       string
	StatusCode int
	Body       string
}

func (e *RemotingError) Error() string {
	return fmt.Sprintf("request [host:%s,port:%d,url:%s] failed, status: %d, msg: %s",
		e.Host, e.Port, e.Path, e.StatusCode, e.Body)
}

// IsRemotingError 判断 err 链中是否包含 *RemotingError
func IsRemotingError(err error) (*RemotingError, bool) {
	var re *RemotingError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ConfigErrorf 创建配置错误
func ConfigErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfig)
}

// WrapConnection 包装连接错误
func WrapConnection(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrConnection)
}

// WrapSerialization 包装编解码错误
func WrapSerialization(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrSerialization)
}

// WrapInvocation 包装处理方法返回的错误
func WrapInvocation(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrInvocation)
}
