package remote

// HandlerInfo 单个处理方法：方法名 + 路由
type HandlerInfo struct {
	Location Location
	Method   string
}

// ActorInfo actor 实例及其处理方法，由外部注册表提供
type ActorInfo struct {
	Actor    any
	Handlers []HandlerInfo
}

// Handle 构造 HandlerInfo
func Handle(path, method string) HandlerInfo {
	return HandlerInfo{Location: NewLocation(path), Method: method}
}

// NewActorInfo 构造 ActorInfo
func NewActorInfo(actor any, handlers ...HandlerInfo) ActorInfo {
	return ActorInfo{Actor: actor, Handlers: handlers}
}
