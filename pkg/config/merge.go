package config

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// MergeConfig 将 src 中的非零值覆盖到 dst 上并返回 dst
// dst 为 nil 时返回 src，src 为 nil 时返回 dst，两者都为 nil 返回 ErrNilConfig。
// 零值（false、0、""、nil）视为"未设置"，不会覆盖 dst。
func MergeConfig[T any](dst, src *T) (*T, error) {
	switch {
	case dst == nil && src == nil:
		return nil, ErrNilConfig
	case dst == nil:
		return src, nil
	case src == nil:
		return dst, nil
	}

	if err := mergeValues(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem()); err != nil {
		return nil, err
	}
	return dst, nil
}

func mergeValues(dst, src reflect.Value) error {
	if !src.IsValid() || src.IsZero() {
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		return mergeStruct(dst, src)
	case reflect.Map:
		return mergeMap(dst, src)
	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return mergeValues(dst.Elem(), src.Elem())
	default:
		// 基本类型、切片、函数直接覆盖
		if dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}

func mergeStruct(dst, src reflect.Value) error {
	srcType := src.Type()
	for i := 0; i < src.NumField(); i++ {
		field := srcType.Field(i)
		if !field.IsExported() {
			continue
		}

		dstField := dst.Field(i)
		if !dstField.CanSet() {
			continue
		}
		if err := mergeValues(dstField, src.Field(i)); err != nil {
			return errors.Wrapf(err, "failed to merge field %s", field.Name)
		}
	}
	return nil
}

func mergeMap(dst, src reflect.Value) error {
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), src.Len()))
	}

	iter := src.MapRange()
	for iter.Next() {
		key, srcValue := iter.Key(), iter.Value()

		existing := dst.MapIndex(key)
		if !existing.IsValid() {
			dst.SetMapIndex(key, srcValue)
			continue
		}

		merged := reflect.New(dst.Type().Elem()).Elem()
		merged.Set(existing)
		if err := mergeValues(merged, srcValue); err != nil {
			return errors.Wrapf(err, "failed to merge map key %v", key.Interface())
		}
		dst.SetMapIndex(key, merged)
	}
	return nil
}
