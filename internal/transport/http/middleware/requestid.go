package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	resp "tour-booking-api/internal/transport/http/response"
)

const KeyRequestID = resp.KeyRequestID

// 上游传来的 id 超过这个长度就不沿用
const maxRequestIDLen = 64

// RequestID 沿用网关给的 X-Request-ID，没有就生成一个；响应头和日志都带上
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(KeyRequestID)
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(KeyRequestID, rid)
		c.Set(KeyRequestID, rid)
		c.Next()
	}
}
