package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	Labels []string `json:"labels"`
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Inner inner  `json:"inner"`
}

func TestSerializers_RoundTrip(t *testing.T) {
	original := payload{Name: "job", Count: 3, Inner: inner{Labels: []string{"a", "b"}}}

	for _, s := range []Serializer{NewJSON(), NewMsgpack()} {
		t.Run(s.ContentType(), func(t *testing.T) {
			data, err := s.Serialize(original)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			var decoded payload
			require.NoError(t, s.Deserialize(data, &decoded))
			assert.Equal(t, original, decoded)
		})
	}
}

func TestMsgpack_UsesJSONTags(t *testing.T) {
	data, err := NewMsgpack().Serialize(payload{Name: "job"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, NewMsgpack().Deserialize(data, &decoded))
	assert.Equal(t, "job", decoded["name"])
}

func TestRaw(t *testing.T) {
	s := NewRaw()

	data, err := s.Serialize("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(data))

	var str string
	require.NoError(t, s.Deserialize([]byte("hello"), &str))
	assert.Equal(t, "hello", str)

	var raw []byte
	require.NoError(t, s.Deserialize([]byte{1, 2, 3}, &raw))
	assert.Equal(t, []byte{1, 2, 3}, raw)

	var p payload
	require.NoError(t, s.Deserialize([]byte(`{"name":"x"}`), &p))
	assert.Equal(t, "x", p.Name)
}

func TestJSON_DeserializeInvalid(t *testing.T) {
	var p payload
	assert.Error(t, NewJSON().Deserialize([]byte("not json"), &p))
}

func TestForContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
		ok          bool
	}{
		{"application/json", ContentTypeJSON, true},
		{"application/json; charset=utf-8", ContentTypeJSON, true},
		{"Application/MsgPack", ContentTypeMsgpack, true},
		{"application/octet-stream", ContentTypeBinary, true},
		{"text/html", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			s, ok := ForContentType(tt.contentType)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, s.ContentType())
			}
		})
	}
}

func TestDefault(t *testing.T) {
	assert.Equal(t, ContentTypeJSON, Default().ContentType())

	SetDefault(NewMsgpack())
	assert.Equal(t, ContentTypeMsgpack, Default().ContentType())
	SetDefault(nil)
	assert.Equal(t, ContentTypeMsgpack, Default().ContentType())

	SetDefault(NewJSON())
}
