package serializer

import (
	"bytes"
	"reflect"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/lk2023060901/httpremote/pkg/pool/bytebuff"
)

// msgpackHandle RawToString=true, MapType=map[string]interface{}
var msgpackHandle = &codec.MsgpackHandle{}

func init() {
	msgpackHandle.MapType = reflect.TypeOf(map[string]interface{}{})
	msgpackHandle.RawToString = true
	// 与 JSON 共用 json tag，同一个载荷两种编码字段名一致
	msgpackHandle.TypeInfos = codec.NewTypeInfos([]string{"json", "codec"})
}

// Msgpack msgpack 序列化器
type Msgpack struct{}

// NewMsgpack 创建 msgpack 序列化器
func NewMsgpack() *Msgpack {
	return &Msgpack{}
}

func (s *Msgpack) Serialize(v any) ([]byte, error) {
	buf := bytebuff.Get()
	defer bytebuff.Put(buf)

	if err := codec.NewEncoder(buf, msgpackHandle).Encode(v); err != nil {
		return nil, err
	}

	// buf 会被复用，必须复制
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

func (s *Msgpack) Deserialize(data []byte, v any) error {
	return codec.NewDecoder(bytes.NewReader(data), msgpackHandle).Decode(v)
}

func (s *Msgpack) ContentType() string {
	return ContentTypeMsgpack
}
