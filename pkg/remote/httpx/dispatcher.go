package httpx

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/httpremote/pkg/compress"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"github.com/lk2023060901/httpremote/pkg/pool/bytebuff"
	"github.com/lk2023060901/httpremote/pkg/remote"
	"github.com/lk2023060901/httpremote/pkg/serializer"
)

const contentTypeText = "text/plain; charset=utf-8"

// Dispatcher 把入站请求解码后交给绑定的处理方法
type Dispatcher struct {
	maxBodySize int64
	// minCompressSize 响应体达到该大小且客户端声明 Accept-Encoding 时压缩
	minCompressSize int
	logger          logger.Logger
}

// NewDispatcher 创建分发器，MaxBodySize 为 0 不限制请求体（按解压后的大小计算）
func NewDispatcher(cfg *Config, l logger.Logger) *Dispatcher {
	if l == nil {
		l = logger.Default()
	}
	return &Dispatcher{
		maxBodySize:     cfg.MaxBodySize,
		minCompressSize: cfg.Compression.MinSize,
		logger:          l.Named("remote.http.dispatcher"),
	}
}

// Handle 返回绑定对应的 gin 处理函数
// 请求体按 Content-Type 解码（缺省 JSON），空请求体得到零值载荷；
// 返回 string 原样写出，nil 写出空的 200，其它值按 Accept 编码（缺省 JSON）
func (d *Dispatcher) Handle(b *HandlerBinding) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body, err := decodeBody(c.Request.Header, c.Request.Body)
		if err != nil {
			_ = c.AbortWithError(http.StatusUnsupportedMediaType,
				remote.WrapSerialization(err, "request body for %s", b.Path))
			return
		}
		defer body.Close()

		buf, err := bytebuff.ReadAll(body, d.maxBodySize)
		if err != nil {
			if errors.Is(err, bytebuff.ErrTooLarge) {
				_ = c.AbortWithError(http.StatusRequestEntityTooLarge,
					remote.WrapSerialization(err, "request body for %s", b.Path))
				return
			}
			_ = c.Error(remote.WrapSerialization(err, "read request body for %s", b.Path))
			c.Abort()
			return
		}
		defer bytebuff.Put(buf)

		codec := codecFor(c.ContentType())
		payload := b.NewPayload()
		if len(bytes.TrimSpace(buf.B)) > 0 {
			if err := codec.Deserialize(buf.B, payload); err != nil {
				d.logger.DebugContext(ctx, "decode request failed",
					"path", b.Path, "content_type", c.ContentType(), "size", len(buf.B), "error", err)
				_ = c.Error(remote.WrapSerialization(err, "decode %s for %s", b.PayloadType, b.Path))
				c.Abort()
				return
			}
		}

		result, err := b.Invoke(ctx, payload)
		if err != nil {
			_ = c.Error(remote.WrapInvocation(err, "%s.%s", b.ActorType, b.Method))
			c.Abort()
			return
		}

		d.write(c, b, result)
	}
}

func (d *Dispatcher) write(c *gin.Context, b *HandlerBinding, result any) {
	switch v := result.(type) {
	case nil:
		c.Status(http.StatusOK)
	case string:
		c.Data(http.StatusOK, contentTypeText, []byte(v))
	default:
		codec := codecFor(c.GetHeader("Accept"))
		body, err := codec.Serialize(v)
		if err != nil {
			_ = c.Error(remote.WrapSerialization(err, "encode %T returned by %s.%s", v, b.ActorType, b.Method))
			c.Abort()
			return
		}
		d.writeBody(c, codec.ContentType(), body)
	}
}

// writeBody 客户端接受的编码可用时压缩响应体
func (d *Dispatcher) writeBody(c *gin.Context, contentType string, body []byte) {
	if len(body) >= d.minCompressSize {
		if comp, ok := compress.Negotiate(c.GetHeader(headerAcceptEncoding)); ok {
			compressed, err := comp.Compress(body)
			if err == nil {
				c.Header(headerContentEncoding, comp.Name())
				c.Data(http.StatusOK, contentType, compressed)
				return
			}
			d.logger.WarnContext(c.Request.Context(), "compress response failed", "encoding", comp.Name(), "error", err)
		}
	}
	c.Data(http.StatusOK, contentType, body)
}

// decodeBody 按 Content-Encoding 解压消息体，不支持的编码返回 compress.ErrUnsupported
func decodeBody(h http.Header, r io.Reader) (io.ReadCloser, error) {
	encoding := strings.TrimSpace(h.Get(headerContentEncoding))
	if encoding == "" || strings.EqualFold(encoding, "identity") {
		return io.NopCloser(r), nil
	}
	comp, err := compress.Get(compress.Type(strings.ToLower(encoding)))
	if err != nil {
		return nil, err
	}
	return comp.NewReader(r)
}

// codecFor 未知类型与原始字节都按 JSON 处理
func codecFor(contentType string) serializer.Serializer {
	codec, ok := serializer.ForContentType(contentType)
	if !ok {
		return serializer.NewJSON()
	}
	switch codec.ContentType() {
	case serializer.ContentTypeBinary, serializer.ContentTypeText:
		return serializer.NewJSON()
	}
	return codec
}
