package remote

import "context"

// Transporter 出站传输
// Tell 与 Ask 都会阻塞到响应返回（或 ctx 结束）
type Transporter interface {
	Protocol() Protocol
	// Tell 只关心对端是否返回 200，不读取响应体
	Tell(ctx context.Context, url URL, msg Serializable) error
	// Ask 等待响应并解码到 reply
	// reply 为 nil 时不解码；*string 接收原始响应体；其它按 JSON 解码
	Ask(ctx context.Context, url URL, msg Serializable, reply any) error
	Close() error
}

// CSInitializer 服务端/客户端生命周期
type CSInitializer interface {
	// Type 协议类型，如 "HTTP"
	Type() string
	// Init 启动监听
	Init(ctx context.Context) error
	// BindHandlers 构建并安装路由表
	BindHandlers(actors []ActorInfo) error
	// BuildTransporter 创建出站传输
	BuildTransporter() (Transporter, error)
	// Close 可重复调用
	Close() error
}
