package httpx

import "github.com/cockroachdb/errors"

var (
	// ErrAlreadyStarted Init 被重复调用
	ErrAlreadyStarted = errors.New("httpx: server already started")
	// ErrRoutesInstalled BindHandlers 被重复调用
	ErrRoutesInstalled = errors.New("httpx: routes already installed")
	// ErrClosed 对已关闭的对象操作
	ErrClosed = errors.New("httpx: closed")
)
