package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "tour-booking-api/internal/transport/http/response"
)

// MaxBodyBytes 限制请求体大小；声明长度超限直接 413，其余由读取时截断
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp.Error(http.StatusRequestEntityTooLarge, "Request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
