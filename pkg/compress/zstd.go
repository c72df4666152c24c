package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdCompressor 编码器可并发 EncodeAll，解码按请求创建流
type zstdCompressor struct {
	encoder *zstd.Encoder
}

// newZstdCompressor 创建 Zstd 压缩器
func newZstdCompressor() (*zstdCompressor, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		return nil, err
	}
	return &zstdCompressor{encoder: encoder}, nil
}

func (c *zstdCompressor) Compress(src []byte) ([]byte, error) {
	return c.encoder.EncodeAll(src, nil), nil
}

func (c *zstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (c *zstdCompressor) Name() string {
	return string(TypeZstd)
}
