package httpx

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/remote"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

type resultShape int

const (
	resultNone     resultShape = iota // func(...)
	resultValue                       // func(...) T
	resultError                       // func(...) error
	resultValueErr                    // func(...) (T, error)
)

// HandlerBinding 路由到处理方法的绑定，构建后只读
type HandlerBinding struct {
	Path        string
	Method      string
	ActorType   reflect.Type
	PayloadType reflect.Type

	fn           reflect.Value
	numIn        int
	payloadIndex int
	withContext  bool
	shape        resultShape
}

// NewPayload 返回一个可供解码的新载荷指针
func (b *HandlerBinding) NewPayload() any {
	if b.PayloadType.Kind() == reflect.Ptr {
		return reflect.New(b.PayloadType.Elem()).Interface()
	}
	return reflect.New(b.PayloadType).Interface()
}

// Invoke 调用处理方法，payload 必须来自 NewPayload
// 返回值为 nil（包括 nil 指针）表示空响应
func (b *HandlerBinding) Invoke(ctx context.Context, payload any) (any, error) {
	pv := reflect.ValueOf(payload)
	if b.PayloadType.Kind() != reflect.Ptr {
		pv = pv.Elem()
	}

	args := make([]reflect.Value, b.numIn)
	if b.withContext {
		if ctx == nil {
			ctx = context.Background()
		}
		args[0] = reflect.ValueOf(ctx)
	}
	args[b.payloadIndex] = pv

	out := b.fn.Call(args)

	switch b.shape {
	case resultValue:
		return resultInterface(out[0]), nil
	case resultError:
		return nil, errorOf(out[0])
	case resultValueErr:
		if err := errorOf(out[1]); err != nil {
			return nil, err
		}
		return resultInterface(out[0]), nil
	default:
		return nil, nil
	}
}

func resultInterface(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}
	return v.Interface()
}

func errorOf(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// RouteTable 精确匹配的路由表，构建后只读，并发安全
type RouteTable struct {
	bindings map[string]*HandlerBinding
}

// BuildRouteTable 根据外部注册表构建路由表
// 每个处理方法必须恰好有一个载荷参数，可选的第一个参数为 context.Context；
// 返回值可以是 ()、(T)、(error) 或 (T, error)。
// 不合法的处理方法与重复路径（先注册者生效）都会被跳过，所有问题合并为一个 ErrConfig 返回。
func BuildRouteTable(actors []remote.ActorInfo, resolver remote.PayloadResolver) (*RouteTable, error) {
	if resolver == nil {
		resolver = remote.DefaultPayloadResolver
	}

	table := &RouteTable{bindings: make(map[string]*HandlerBinding)}
	var errs []error

	for _, actor := range actors {
		for _, h := range actor.Handlers {
			binding, err := bindHandler(actor.Actor, h, resolver)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if existing, ok := table.bindings[binding.Path]; ok {
				errs = append(errs, remote.ConfigErrorf("duplicate route %s: %s.%s already bound, %s.%s rejected",
					binding.Path, existing.ActorType, existing.Method, binding.ActorType, binding.Method))
				continue
			}
			table.bindings[binding.Path] = binding
		}
	}

	if len(errs) > 0 {
		return table, errors.Mark(errors.Join(errs...), remote.ErrConfig)
	}
	return table, nil
}

func bindHandler(actor any, h remote.HandlerInfo, resolver remote.PayloadResolver) (*HandlerBinding, error) {
	path := h.Location.ToPath()
	if strings.ContainsAny(path, ":*") {
		return nil, remote.ConfigErrorf("route %s: path must not contain ':' or '*'", path)
	}
	if actor == nil {
		return nil, remote.ConfigErrorf("route %s: actor is nil", path)
	}

	av := reflect.ValueOf(actor)
	fn := av.MethodByName(h.Method)
	if !fn.IsValid() {
		return nil, remote.ConfigErrorf("route %s: %s has no exported method %q", path, av.Type(), h.Method)
	}

	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, remote.ConfigErrorf("route %s: %s.%s is variadic", path, av.Type(), h.Method)
	}

	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}

	idx, err := resolver.ResolvePayload(params)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "route %s: %s.%s", path, av.Type(), h.Method), remote.ErrConfig)
	}
	if idx < 0 || idx >= len(params) {
		return nil, remote.ConfigErrorf("route %s: resolver returned invalid parameter index %d", path, idx)
	}

	withContext := false
	for i, t := range params {
		if i == idx {
			continue
		}
		if i == 0 && t == contextType {
			withContext = true
			continue
		}
		return nil, remote.ConfigErrorf("route %s: %s.%s has unsupported parameter #%d of type %s",
			path, av.Type(), h.Method, i, t)
	}

	shape, err := resultShapeOf(ft)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "route %s: %s.%s", path, av.Type(), h.Method), remote.ErrConfig)
	}

	return &HandlerBinding{
		Path:         path,
		Method:       h.Method,
		ActorType:    av.Type(),
		PayloadType:  params[idx],
		fn:           fn,
		numIn:        len(params),
		payloadIndex: idx,
		withContext:  withContext,
		shape:        shape,
	}, nil
}

func resultShapeOf(ft reflect.Type) (resultShape, error) {
	switch ft.NumOut() {
	case 0:
		return resultNone, nil
	case 1:
		if ft.Out(0) == errorType {
			return resultError, nil
		}
		return resultValue, nil
	case 2:
		if ft.Out(1) == errorType && ft.Out(0) != errorType {
			return resultValueErr, nil
		}
	}
	return 0, remote.ConfigErrorf("unsupported results %s", ft)
}

// Lookup 精确匹配路径
func (t *RouteTable) Lookup(path string) (*HandlerBinding, bool) {
	b, ok := t.bindings[path]
	return b, ok
}

// Paths 返回排序后的所有路径
func (t *RouteTable) Paths() []string {
	paths := make([]string, 0, len(t.bindings))
	for p := range t.bindings {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len 路由数量
func (t *RouteTable) Len() int {
	return len(t.bindings)
}
