package app

import (
	"github.com/google/wire"
)

// AppComponents Wire 注入的组件
// Servers 按顺序启动、逆序停止；Closers 在所有 Server 停止后逆序关闭
type AppComponents struct {
	Servers []Server
	Closers []Closer
}

var ProviderSet = wire.NewSet(
	NewBaseApp,
)

// InitApp 将组件绑定到 BaseApp
func InitApp(app *BaseApp, comps AppComponents) Application {
	app.AppendServer(comps.Servers...)
	app.AppendCloser(comps.Closers...)
	return app
}

// CloserFunc 函数式 Closer
type CloserFunc func() error

func (f CloserFunc) Close() error {
	return f()
}
