// Package query turns request parameters into a store query spec
// (filter, sort, projection, pagination window). It never executes anything.
package query

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"tour-booking-api/internal/core/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100

	IDField        = "_id"
	CreatedAtField = "createdAt"
	VersionField   = "__v"
)

// 保留参数，不参与过滤
var reserved = map[string]struct{}{
	"page": {}, "sort": {}, "limit": {}, "fields": {},
}

// 比较后缀 → 存储操作符；eq 与无后缀都是等值
var operators = map[string]string{
	"":    "",
	"eq":  "",
	"gte": "$gte",
	"gt":  "$gt",
	"lte": "$lte",
	"lt":  "$lt",
}

var bracketKey = regexp.MustCompile(`^([A-Za-z0-9_.]+)\[([A-Za-z]+)\]$`)

// Spec 规范化后的查询描述
type Spec struct {
	Filter     bson.M
	Sort       bson.D
	Projection bson.D
	Page       int64
	Limit      int64
	Skip       int64
}

type Builder struct {
	params Params
	schema Schema
	spec   Spec
	err    error
}

// New 链式调用：New(p, s).Filter().Sort().LimitFields().Paginate().Spec()
func New(params Params, schema Schema) *Builder {
	if params == nil {
		params = Params{}
	}
	return &Builder{params: params, schema: schema, spec: Spec{Filter: bson.M{}}}
}

// Filter 去掉保留参数，把比较后缀改写成操作符，值按字段类型转换
func (b *Builder) Filter() *Builder {
	if b.err != nil {
		return b
	}
	keys := make([]string, 0, len(b.params))
	for k := range b.params {
		if _, ok := reserved[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filter := bson.M{}
	for _, key := range keys {
		field, op := splitKey(key)
		kind, ok := b.schema[field]
		if !ok {
			b.err = apperr.BadRequest(fmt.Sprintf("Unknown filter field: %s", field))
			return b
		}
		storeOp, ok := operators[strings.ToLower(op)]
		if !ok {
			b.err = apperr.BadRequest(fmt.Sprintf("Unsupported operator %q on field %s", op, field))
			return b
		}
		raw := b.params[key]
		val, err := coerce(kind, raw)
		if err != nil {
			b.err = apperr.BadRequest(fmt.Sprintf("Invalid %s: %s", field, raw))
			return b
		}
		merge(filter, field, storeOp, val)
	}
	b.spec.Filter = filter
	return b
}

func splitKey(key string) (field, op string) {
	if m := bracketKey.FindStringSubmatch(key); m != nil {
		return m[1], m[2]
	}
	return key, ""
}

func merge(filter bson.M, field, op string, val any) {
	existing, present := filter[field]
	ops, isOps := existing.(bson.M)
	switch {
	case !present && op == "":
		filter[field] = val
	case !present:
		filter[field] = bson.M{op: val}
	case isOps && op == "":
		ops["$eq"] = val
	case isOps:
		ops[op] = val
	case op == "":
		filter[field] = val
	default:
		filter[field] = bson.M{"$eq": existing, op: val}
	}
}

// Sort 逗号分隔，"-" 前缀倒序；默认按创建时间倒序。末尾追加 _id 保证顺序稳定
func (b *Builder) Sort() *Builder {
	if b.err != nil {
		return b
	}
	var out bson.D
	seen := map[string]bool{}
	raw := strings.TrimSpace(b.params["sort"])
	if raw == "" {
		out = bson.D{{Key: CreatedAtField, Value: -1}}
		seen[CreatedAtField] = true
	} else {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			dir := 1
			switch part[0] {
			case '-':
				dir, part = -1, part[1:]
			case '+':
				part = part[1:]
			}
			if part != IDField && !b.schema.Has(part) {
				b.err = apperr.BadRequest(fmt.Sprintf("Unknown sort field: %s", part))
				return b
			}
			if seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, bson.E{Key: part, Value: dir})
		}
	}
	if !seen[IDField] {
		out = append(out, bson.E{Key: IDField, Value: 1})
	}
	b.spec.Sort = out
	return b
}

// LimitFields 字段投影；未指定时只排除版本字段
func (b *Builder) LimitFields() *Builder {
	if b.err != nil {
		return b
	}
	raw := strings.TrimSpace(b.params["fields"])
	if raw == "" {
		b.spec.Projection = bson.D{{Key: VersionField, Value: 0}}
		return b
	}
	var proj bson.D
	include, exclude := false, false
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v := 1
		if strings.HasPrefix(part, "-") {
			v, part = 0, part[1:]
		}
		if part != IDField && !b.schema.Has(part) {
			b.err = apperr.BadRequest(fmt.Sprintf("Unknown field: %s", part))
			return b
		}
		// _id 的排除可以和包含混用
		if part != IDField {
			if v == 1 {
				include = true
			} else {
				exclude = true
			}
		}
		proj = append(proj, bson.E{Key: part, Value: v})
	}
	if include && exclude {
		b.err = apperr.BadRequest("Cannot mix included and excluded fields")
		return b
	}
	if len(proj) == 0 {
		proj = bson.D{{Key: VersionField, Value: 0}}
	}
	b.spec.Projection = proj
	return b
}

// Paginate skip = (page-1)*limit；非数字或非正数回落到默认值，skip 溢出 int64 算错误请求
func (b *Builder) Paginate() *Builder {
	if b.err != nil {
		return b
	}
	page := positiveInt(b.params["page"], DefaultPage)
	limit := positiveInt(b.params["limit"], DefaultLimit)
	if page-1 > math.MaxInt64/limit {
		b.err = apperr.BadRequest(fmt.Sprintf("Page %d is out of range for limit %d", page, limit))
		return b
	}
	b.spec.Page = page
	b.spec.Limit = limit
	b.spec.Skip = (page - 1) * limit
	return b
}

// Spec 返回结果和链上第一个错误
func (b *Builder) Spec() (Spec, error) {
	if b.err != nil {
		return Spec{}, b.err
	}
	return b.spec, nil
}

// Build 完整的 filter→sort→fields→paginate
func Build(params Params, schema Schema) (Spec, error) {
	return New(params, schema).Filter().Sort().LimitFields().Paginate().Spec()
}

func positiveInt(s string, def int64) int64 {
	if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && v > 0 {
		return v
	}
	return def
}
