// Package httpx 提供把工作单元绑定到 gin 请求的中间件，以及分页参数与错误响应的转换。
package httpx

import (
	"github.com/gin-gonic/gin"

	"gochen-data/data/uow"
	"gochen-data/logging"
)

const uowKey = "gochen.uow"

// UnitOfWork 为每个请求创建工作单元：处理函数执行后，
// 没有记录错误且状态码小于 500 时提交全部上下文，否则回滚；无论结果如何都会释放工作单元。
//
// 处理函数已写出响应时提交失败只能记录到 c.Errors，
// 需要把提交失败反映在响应上的处理函数应只设置状态码而不写出响应体。
func UnitOfWork(newUoW func(*gin.Context) (*uow.UnitOfWork, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderCorrelationID)
		if id == "" {
			id = GenerateCorrelationID()
		}
		ctx := WithCorrelationID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderCorrelationID, id)
		log := logging.ComponentLogger("httpx").WithFields(logging.String("correlation_id", id))

		u, err := newUoW(c)
		if err != nil {
			log.Error(ctx, "创建工作单元失败", logging.Error(err))
			c.AbortWithStatusJSON(StatusOf(err), errorPayload(err))
			return
		}
		defer func() {
			if err := u.Close(); err != nil {
				log.Warn(ctx, "释放工作单元失败", logging.Error(err))
			}
		}()
		c.Set(uowKey, u)

		c.Next()

		if len(c.Errors) > 0 || c.Writer.Status() >= 500 {
			if err := u.RollbackAll(ctx); err != nil {
				log.Warn(ctx, "回滚工作单元失败", logging.Error(err))
			}
			return
		}

		n, err := u.CommitAll(ctx)
		if err != nil {
			log.Error(ctx, "提交工作单元失败", logging.Error(err))
			if c.Writer.Written() {
				_ = c.Error(err)
				return
			}
			c.AbortWithStatusJSON(StatusOf(err), errorPayload(err))
			return
		}
		log.Debug(ctx, "工作单元已提交", logging.Int("rows", n))
	}
}

// FromGin 返回中间件绑定到请求的工作单元
func FromGin(c *gin.Context) (*uow.UnitOfWork, bool) {
	v, ok := c.Get(uowKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*uow.UnitOfWork)
	return u, ok
}
