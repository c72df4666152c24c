package compress

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// gzipCompressor 复用 gzip.Writer
type gzipCompressor struct {
	writers sync.Pool
}

func newGzipCompressor() *gzipCompressor {
	return &gzipCompressor{
		writers: sync.Pool{New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
			return w
		}},
	}
}

func (c *gzipCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := c.writers.Get().(*gzip.Writer)
	defer c.writers.Put(w)

	w.Reset(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *gzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (c *gzipCompressor) Name() string {
	return string(TypeGzip)
}
