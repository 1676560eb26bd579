package ez

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/core/auth"
	"tour-booking-api/internal/query"
	mdw "tour-booking-api/internal/transport/http/middleware"
	resp "tour-booking-api/internal/transport/http/response"
)

// EZ 一行注册动作接口：绑定、鉴权、错误映射都在这里统一处理
type EZ struct {
	g      *gin.RouterGroup
	log    *zap.Logger
	policy *auth.Policy
}

func New(g *gin.RouterGroup, l *zap.Logger, p *auth.Policy) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, log: l, policy: p}
}

// On 换一个分组，日志和策略表沿用
func (e EZ) On(g *gin.RouterGroup) EZ { return EZ{g: g, log: e.log, policy: e.policy} }

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // query.Params 取原始参数；其他类型按 form tag 绑定
	BindRaw   Binder = "raw"   // 原始请求体，I 必须是 []byte（部分更新用）
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// 动作定义：I 入参，O 出参（完整的响应信封）
type Action[I any, O any] struct {
	Method string // 默认 POST
	Path   string // 例："/tours/:id"
	Binder Binder
	Auth   bool // 是否要求登录（依赖分组上的 Protect）

	// Resource / Act 非空时按策略表判定角色，隐含 Auth
	Resource string
	Act      string

	Status  int // 成功状态码，默认 200；204 不写 body
	Handler func(c *gin.Context, in *I) (O, error)
}

// RegisterAction 在当前分组下注册动作
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	status := a.Status
	if status == 0 {
		status = http.StatusOK
	}
	h := func(c *gin.Context) {
		// 1) 鉴权 / 角色
		if a.Auth || a.Resource != "" {
			if err := mdw.Check(c, e.policy, a.Resource, a.Act); err != nil {
				resp.Fail(c, e.log, err)
				return
			}
		}

		// 2) 绑定入参
		var in I
		if err := bind(c, a.Binder, &in); err != nil {
			resp.Fail(c, e.log, err)
			return
		}

		// 3) 执行 + 统一错误映射
		out, err := a.Handler(c, &in)
		if err != nil {
			resp.Fail(c, e.log, err)
			return
		}
		if status == http.StatusNoContent {
			c.Status(status)
			return
		}
		c.JSON(status, out)
	}

	method := strings.ToUpper(a.Method)
	if method == "" {
		method = http.MethodPost
	}
	e.g.Handle(method, a.Path, h)
}

func bind[I any](c *gin.Context, b Binder, in *I) error {
	switch b {
	case BindJSON:
		if err := c.ShouldBindJSON(in); err != nil {
			return bodyErr(err)
		}
	case BindQuery:
		if p, ok := any(in).(*query.Params); ok {
			*p = query.FromValues(c.Request.URL.Query())
			return nil
		}
		if err := c.ShouldBindQuery(in); err != nil {
			return apperr.BadRequest("Invalid query: " + err.Error())
		}
	case BindRaw:
		p, ok := any(in).(*[]byte)
		if !ok {
			return apperr.Internal("raw binder needs a []byte input", nil)
		}
		raw, err := c.GetRawData()
		if err != nil {
			return bodyErr(err)
		}
		*p = raw
	}
	return nil
}

func bodyErr(err error) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return apperr.BadRequest("Request body too large")
	}
	return apperr.BadRequest("Invalid request body: " + err.Error())
}
