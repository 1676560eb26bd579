package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tour-booking-api/internal/core/apperr"
)

type Resp struct {
	Status  string             `json:"status"`
	Results *int               `json:"results,omitempty"`
	Token   string             `json:"token,omitempty"`
	Message string             `json:"message,omitempty"`
	Errors  []apperr.Violation `json:"errors,omitempty"`
	Data    any                `json:"data,omitempty"`
}

// OK 单条资源：{status, data:{data}}
func OK(doc any) Resp {
	return Resp{Status: StatusSuccess, Data: gin.H{"data": doc}}
}

// List 列表：{status, results, data:{data}}
func List(items any, n int) Resp {
	return Resp{Status: StatusSuccess, Results: &n, Data: gin.H{"data": items}}
}

// Named 数据挂在指定 key 下，如 stats / plan / user
func Named(key string, v any) Resp {
	return Resp{Status: StatusSuccess, Data: gin.H{key: v}}
}

// Token 认证成功：{status, token, data:{user}}
func Token(token string, user any) Resp {
	return Resp{Status: StatusSuccess, Token: token, Data: gin.H{"user": user}}
}

// Error 失败响应（可以传自定义 msg 覆盖默认）
func Error(code int, msg string) Resp {
	return Resp{Status: StatusOf(code), Message: msg}
}

// FromError 错误 → (HTTP 状态码, 信封)；非业务错误不外泄细节
func FromError(err error) (int, Resp) {
	var ae *apperr.Error
	if !errors.As(err, &ae) || !ae.Operational() {
		return http.StatusInternalServerError, Error(http.StatusInternalServerError, MsgUnexpected)
	}
	code := HTTPStatus(ae.Kind)
	r := Error(code, ae.Error())
	r.Errors = ae.Violations
	return code, r
}

// Fail 写错误响应并中止；500 记 error 日志带上请求 id
func Fail(c *gin.Context, l *zap.Logger, err error) {
	code, body := FromError(err)
	if code >= http.StatusInternalServerError && l != nil {
		l.Error("request failed",
			zap.String("rid", c.GetString(KeyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(code, body)
}
