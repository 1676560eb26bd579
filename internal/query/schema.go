package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind 字段值类型，决定过滤值如何从字符串转换
type Kind int

const (
	String Kind = iota
	Number
	Bool
	Date
	ObjectID
	Object // 嵌套文档：可投影、不可过滤
)

// Schema 资源可查询字段（过滤 / 排序 / 投影都以此为白名单）
type Schema map[string]Kind

// Has 字段是否声明过
func (s Schema) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Params 扁平的查询参数
type Params map[string]string

// FromValues 重复的 key 取最后一个值（防参数污染）
func FromValues(v url.Values) Params {
	p := make(Params, len(v))
	for k, vals := range v {
		if len(vals) == 0 {
			continue
		}
		p[k] = vals[len(vals)-1]
	}
	return p
}

// With 返回覆盖了部分 key 的新参数集
func (p Params) With(overrides Params) Params {
	out := make(Params, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func coerce(kind Kind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case Number:
		return strconv.ParseFloat(raw, 64)
	case Bool:
		return strconv.ParseBool(raw)
	case Date:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC(), nil
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case ObjectID:
		return primitive.ObjectIDFromHex(raw)
	case String:
		return raw, nil
	case Object:
		return nil, fmt.Errorf("field is not filterable")
	default:
		return nil, fmt.Errorf("unknown kind %d", kind)
	}
}
