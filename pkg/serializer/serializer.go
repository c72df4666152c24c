package serializer

import (
	"encoding/json"
	"mime"
	"strings"
	"sync"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
	ContentTypeText    = "text/plain"
	ContentTypeBinary  = "application/octet-stream"
)

// Serializer 序列化器接口
type Serializer interface {
	// Serialize 序列化
	Serialize(v any) ([]byte, error)
	// Deserialize 反序列化
	Deserialize(data []byte, v any) error
	// ContentType 请求/响应头中使用的内容类型
	ContentType() string
}

// JSON JSON 序列化器
type JSON struct{}

// NewJSON 创建 JSON 序列化器
func NewJSON() *JSON {
	return &JSON{}
}

func (s *JSON) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSON) Deserialize(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (s *JSON) ContentType() string {
	return ContentTypeJSON
}

// Raw 原始字节序列化器
// []byte 与 string 原样输出，其它类型退化为 JSON
type Raw struct{}

// NewRaw 创建原始字节序列化器
func NewRaw() *Raw {
	return &Raw{}
}

func (s *Raw) Serialize(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		return json.Marshal(v)
	}
}

func (s *Raw) Deserialize(data []byte, v any) error {
	switch ptr := v.(type) {
	case *[]byte:
		*ptr = append((*ptr)[:0], data...)
		return nil
	case *string:
		*ptr = string(data)
		return nil
	default:
		return json.Unmarshal(data, v)
	}
}

func (s *Raw) ContentType() string {
	return ContentTypeBinary
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Serializer{
		ContentTypeJSON:    NewJSON(),
		ContentTypeMsgpack: NewMsgpack(),
		ContentTypeBinary:  NewRaw(),
	}
	defaultSerializer Serializer = NewJSON()
)

// Register 按内容类型注册序列化器
func Register(s Serializer) {
	if s == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.ContentType()] = s
}

// ForContentType 根据 Content-Type 头查找序列化器，忽略 charset 等参数
// 空值或无法识别时返回 false
func ForContentType(contentType string) (Serializer, bool) {
	if contentType == "" {
		return nil, false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}

	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[strings.ToLower(mediaType)]
	return s, ok
}

// SetDefault 设置默认序列化器
func SetDefault(s Serializer) {
	if s == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultSerializer = s
}

// Default 获取默认序列化器
func Default() Serializer {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return defaultSerializer
}
