package compress

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
)

// snappyCompressor 使用分帧格式，可以流式解压
type snappyCompressor struct{}

func (c *snappyCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *snappyCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}

func (c *snappyCompressor) Name() string {
	return string(TypeSnappy)
}
