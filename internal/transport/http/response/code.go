package response

import (
	"net/http"

	"tour-booking-api/internal/core/apperr"
)

// 信封里的 status 字段
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// KeyRequestID 请求 id 在 header / gin.Context 里的 key
const KeyRequestID = "X-Request-ID"

// MsgUnexpected 非业务错误一律用这句话回给调用方
const MsgUnexpected = "Something went very wrong!"

// HTTPStatus 错误分类 → HTTP 状态码
func HTTPStatus(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindDuplicate:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf 4xx 为 fail，5xx 为 error
func StatusOf(code int) string {
	if code >= http.StatusInternalServerError {
		return StatusError
	}
	return StatusFail
}
