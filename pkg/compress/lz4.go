package compress

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4Compressor 使用 LZ4 帧格式，帧头自带长度信息
type lz4Compressor struct{}

func (c *lz4Compressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *lz4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (c *lz4Compressor) Name() string {
	return string(TypeLZ4)
}
