package remote

import (
	"reflect"
)

// Serializable 可以作为线上载荷的消息类型
// 嵌入 Message 即可获得该能力
type Serializable interface {
	IsSerializable()
}

// Message 嵌入到载荷结构体中，不影响 JSON 编码
type Message struct{}

func (Message) IsSerializable() {}

// PayloadResolver 在处理方法的参数列表中选出唯一的载荷参数
type PayloadResolver interface {
	// ResolvePayload 返回载荷参数的下标
	// 没有或存在多个载荷参数时返回 ErrConfig
	ResolvePayload(params []reflect.Type) (int, error)
}

// PayloadResolverFunc 函数式 PayloadResolver
type PayloadResolverFunc func(params []reflect.Type) (int, error)

func (f PayloadResolverFunc) ResolvePayload(params []reflect.Type) (int, error) {
	return f(params)
}

var serializableType = reflect.TypeOf((*Serializable)(nil)).Elem()

// IsPayloadType 类型本身或其指针实现了 Serializable
func IsPayloadType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Implements(serializableType) {
		return true
	}
	return t.Kind() != reflect.Ptr && t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(serializableType)
}

// DefaultPayloadResolver 选择实现了 Serializable 的参数
var DefaultPayloadResolver PayloadResolver = PayloadResolverFunc(func(params []reflect.Type) (int, error) {
	found := -1
	for i, t := range params {
		if t.Kind() == reflect.Interface {
			continue
		}
		if !IsPayloadType(t) {
			continue
		}
		if found >= 0 {
			return -1, ConfigErrorf("more than one payload parameter: %s and %s", params[found], t)
		}
		found = i
	}
	if found < 0 {
		return -1, ConfigErrorf("no parameter implements remote.Serializable")
	}
	return found, nil
})
