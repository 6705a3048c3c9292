// Package validation 提供实体 Validate 实现与请求参数检查常用的字段校验，
// 失败时统一返回 VALIDATION_ERROR。
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gochen-data/errors"
)

// MaxPageSize 单页允许的最大条数
const MaxPageSize = 100

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidateStringLength 按字符数验证长度，max <= 0 表示不限上限
func ValidateStringLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if length < min {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能少于%d个字符（当前%d）", fieldName, min, length))
	}
	if max > 0 && length > max {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能超过%d个字符（当前%d）", fieldName, max, length))
	}
	return nil
}

// ValidateEnum 验证枚举值
func ValidateEnum(value, fieldName string, validValues []string) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s的值无效，必须是以下之一: %v", fieldName, validValues))
}

// ValidatePageParams 验证分页参数
func ValidatePageParams(page, pageSize int) error {
	if page <= 0 {
		return errors.NewError(errors.ErrCodeValidation, "页码必须大于0")
	}
	if pageSize <= 0 {
		return errors.NewError(errors.ErrCodeValidation, "每页大小必须大于0")
	}
	if pageSize > MaxPageSize {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("每页大小不能超过%d", MaxPageSize))
	}
	return nil
}

// ValidateID 验证整数主键
func ValidateID(id int64, fieldName string) error {
	if id <= 0 {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s必须为正整数", fieldName))
	}
	return nil
}
