package httpx

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gochen-data/data/orm"
	"gochen-data/data/repo"
	"gochen-data/errors"
	"gochen-data/validation"
)

// DefaultPageSize 未指定 page_size 时的每页条数
const DefaultPageSize = 20

// ListRequest 表示分页与排序请求参数
type ListRequest struct {
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Sort     map[string]string `json:"sort"`
}

// NewListRequest 创建分页请求对象
func NewListRequest(page, pageSize int) *ListRequest {
	return &ListRequest{
		Page:     page,
		PageSize: pageSize,
		Sort:     make(map[string]string),
	}
}

// SetSort 设置排序字段
func (r *ListRequest) SetSort(field, direction string) {
	if r.Sort == nil {
		r.Sort = make(map[string]string)
	}
	r.Sort[field] = direction
}

// BindList 从查询参数读取分页与排序：?page=2&page_size=10&sort=name:desc,id
func BindList(c *gin.Context) *ListRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	r := NewListRequest(page, size)
	for _, part := range strings.Split(c.Query("sort"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ":")
		r.SetSort(field, dir)
	}
	return r
}

// Validate 校验分页参数与排序方向；零值页码与页大小使用默认值
func (r *ListRequest) Validate() error {
	page, size := r.Page, r.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if err := validation.ValidatePageParams(page, size); err != nil {
		return err
	}
	for field, dir := range r.Sort {
		if err := validation.ValidateRequired(field, "排序字段"); err != nil {
			return err
		}
		if err := validation.ValidateEnum(strings.ToLower(dir), "排序方向", []string{"", "asc", "desc"}); err != nil {
			return err
		}
	}
	return nil
}

// Options 转换为仓储查询选项。页码从 1 开始；排序字段按名称排列，未指定时使用主键升序
func (r *ListRequest) Options() []repo.Option {
	page := max(r.Page, 1)
	size := r.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	opts := []repo.Option{repo.Skip((page - 1) * size), repo.Top(size)}

	if len(r.Sort) > 0 {
		fields := make([]string, 0, len(r.Sort))
		for f := range r.Sort {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		orders := make([]orm.OrderBy, 0, len(fields))
		for _, f := range fields {
			if strings.EqualFold(r.Sort[f], "desc") {
				orders = append(orders, orm.Desc(f))
			} else {
				orders = append(orders, orm.Asc(f))
			}
		}
		opts = append(opts, repo.OrderBy(orders...))
	}
	return opts
}

// ErrorPayload 通用错误响应
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code, message, details string) *ErrorPayload {
	return &ErrorPayload{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// StatusOf 按错误码映射 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsErrorCode(err, errors.ErrCodeInvalidInput), errors.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorPayload(err error) *ErrorPayload {
	msg := err.Error()
	if ie, ok := err.(errors.IError); ok {
		msg = ie.Message()
	}
	return NewErrorResponse(string(errors.GetErrorCode(err)), msg, "")
}
