package orm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示记录未找到。
	ErrNotFound = errors.New("orm: record not found")
	// ErrUnsupported 表示当前上下文不支持请求的能力。
	ErrUnsupported = errors.New("orm: capability unsupported")
	// ErrUnknownColumn 查询引用了模型中不存在的列。
	ErrUnknownColumn = errors.New("orm: unknown column")
	// ErrUnknownAssociation 预加载路径引用了不存在的关联。
	ErrUnknownAssociation = errors.New("orm: unknown association")
	// ErrUnsafeIdentifier 标识符包含非法字符。
	ErrUnsafeIdentifier = errors.New("orm: unsafe identifier")
	// ErrInvalidModel 类型无法映射为模型（非结构体或缺少主键）。
	ErrInvalidModel = errors.New("orm: invalid model")
)

// UnsupportedError 携带缺失的能力名，errors.Is(err, ErrUnsupported) 成立。
type UnsupportedError struct {
	Capability Capability
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("orm: capability %q unsupported", e.Capability)
}

func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}
