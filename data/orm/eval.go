package orm

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

// ErrIncomparable 两个值无法比较大小
var ErrIncomparable = errors.New("orm: incomparable values")

// Evaluate 在内存中对一行列值求值谓词。
func Evaluate(p Predicate, row map[string]any) (bool, error) {
	switch p.Op {
	case OpAll:
		return true, nil
	case OpAnd:
		for _, c := range p.Children {
			ok, err := Evaluate(c, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case OpOr:
		for _, c := range p.Children {
			ok, err := Evaluate(c, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case OpNot:
		if len(p.Children) != 1 {
			return false, fmt.Errorf("orm: NOT expects one operand, got %d", len(p.Children))
		}
		ok, err := Evaluate(p.Children[0], row)
		return !ok, err
	case OpRaw:
		return false, &UnsupportedError{Capability: CapabilityRawFilter}
	}

	val, ok := row[p.Column]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownColumn, p.Column)
	}
	val = deref(val)

	switch p.Op {
	case OpIsNull:
		return val == nil, nil
	case OpIn:
		for _, candidate := range p.Values {
			if Equal(val, candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpLike:
		s, isStr := val.(string)
		pattern, patStr := p.Value.(string)
		if !isStr || !patStr {
			return false, nil
		}
		re, err := likeRegexp(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}

	// 与 SQL 一致：NULL 参与的比较不成立
	if val == nil || deref(p.Value) == nil {
		return false, nil
	}
	if p.Op == OpEq {
		return Equal(val, p.Value), nil
	}
	if p.Op == OpNe {
		return !Equal(val, p.Value), nil
	}

	c, err := Compare(val, p.Value)
	if err != nil {
		return false, fmt.Errorf("orm: %s %s: %w", p.Column, p.Op, err)
	}
	switch p.Op {
	case OpGt:
		return c > 0, nil
	case OpGte:
		return c >= 0, nil
	case OpLt:
		return c < 0, nil
	case OpLte:
		return c <= 0, nil
	default:
		return false, fmt.Errorf("orm: unknown operator %q", p.Op)
	}
}

// Equal 判断两个列值是否相等，数值类型跨宽度比较
func Equal(a, b any) bool {
	a, b = deref(a), deref(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, err := Compare(a, b); err == nil {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// Compare 比较两个列值，支持数值、字符串、时间、布尔与字节串
func Compare(a, b any) (int, error) {
	a, b = deref(a), deref(b)
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}

	if c, ok := compareNumbers(a, b); ok {
		return c, nil
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), nil
		}
	}
	if s, ok := a.(fmt.Stringer); ok {
		if t, ok := b.(fmt.Stringer); ok && reflect.TypeOf(a) == reflect.TypeOf(b) {
			return strings.Compare(s.String(), t.String()), nil
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

// SortRows 按排序列稳定排序，NULL 视为最小值
func SortRows(rows []map[string]any, orders []OrderBy) error {
	var sortErr error
	slices.SortStableFunc(rows, func(x, y map[string]any) int {
		c, err := CompareRows(x, y, orders)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return c
	})
	return sortErr
}

// CompareRows 依次按排序列比较两行，全部相等时返回 0
func CompareRows(x, y map[string]any, orders []OrderBy) (int, error) {
	for _, o := range orders {
		c, err := Compare(x[o.Column], y[o.Column])
		if err != nil {
			return 0, err
		}
		if c == 0 {
			continue
		}
		if o.Desc {
			return -c, nil
		}
		return c, nil
	}
	return 0, nil
}

// NormalizeKey 将键值归一为可作为 map 键的形式，整数统一为 int64；
// 超出 int64 范围的无符号整数保留为 uint64
func NormalizeKey(v any) any {
	v = deref(v)
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u > math.MaxInt64 {
			return u
		}
		return int64(rv.Uint())
	case reflect.String:
		return rv.String()
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	if rv.Type().Comparable() {
		return v
	}
	return fmt.Sprint(v)
}

// IsZeroKey 主键是否为零值（未分配）
func IsZeroKey(v any) bool {
	v = deref(v)
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

type numKind int

const (
	notNumber numKind = iota
	signedNumber
	unsignedNumber
	floatNumber
)

func numberKind(rv reflect.Value) numKind {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return signedNumber
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return unsignedNumber
	case reflect.Float32, reflect.Float64:
		return floatNumber
	default:
		return notNumber
	}
}

// compareNumbers 整数之间精确比较，只有一侧为浮点数时才按 float64 比较
func compareNumbers(a, b any) (int, bool) {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	ka, kb := numberKind(ra), numberKind(rb)
	if ka == notNumber || kb == notNumber {
		return 0, false
	}
	switch {
	case ka == floatNumber || kb == floatNumber:
		return cmp.Compare(toFloat(ra, ka), toFloat(rb, kb)), true
	case ka == signedNumber && kb == signedNumber:
		return cmp.Compare(ra.Int(), rb.Int()), true
	case ka == unsignedNumber && kb == unsignedNumber:
		return cmp.Compare(ra.Uint(), rb.Uint()), true
	case ka == signedNumber:
		if ra.Int() < 0 {
			return -1, true
		}
		return cmp.Compare(uint64(ra.Int()), rb.Uint()), true
	default:
		if rb.Int() < 0 {
			return 1, true
		}
		return cmp.Compare(ra.Uint(), uint64(rb.Int())), true
	}
}

func toFloat(rv reflect.Value, k numKind) float64 {
	switch k {
	case signedNumber:
		return float64(rv.Int())
	case unsignedNumber:
		return float64(rv.Uint())
	default:
		return rv.Float()
	}
}

var likeCache sync.Map

// likeRegexp 将 LIKE 模式转换为正则，区分大小写
func likeRegexp(pattern string) (*regexp.Regexp, error) {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString("(?s:.*)")
		case '_':
			b.WriteString("(?s:.)")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	likeCache.Store(pattern, re)
	return re, nil
}
