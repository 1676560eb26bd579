package apperr

import (
	"errors"
	"strings"
)

// Kind 错误分类，传输层按它映射状态码
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindDuplicate
	KindNotFound
	KindBadRequest
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationFailed"
	case KindDuplicate:
		return "DuplicateKey"
	case KindNotFound:
		return "NotFound"
	case KindBadRequest:
		return "BadRequest"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	default:
		return "Unexpected"
	}
}

// Violation 单条字段约束失败
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

type Error struct {
	Kind       Kind
	Msg        string
	Violations []Violation
	Err        error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Operational 可以原样告诉调用方的错误
func (e *Error) Operational() bool { return e.Kind != KindUnexpected }

func BadRequest(msg string) error   { return &Error{Kind: KindBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &Error{Kind: KindForbidden, Msg: msg} }
func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Duplicate(msg string, err error) error {
	return &Error{Kind: KindDuplicate, Msg: msg, Err: err}
}
func Internal(msg string, err error) error {
	return &Error{Kind: KindUnexpected, Msg: msg, Err: err}
}

// Validation 汇总所有违反的约束
func Validation(vs []Violation) error {
	msgs := make([]string, 0, len(vs))
	for _, v := range vs {
		msgs = append(msgs, v.Message)
	}
	return &Error{
		Kind:       KindValidation,
		Msg:        "Invalid input data. " + strings.Join(msgs, ". "),
		Violations: vs,
	}
}

// KindOf 非 *Error 一律视为 Unexpected
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }
