package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tour-booking-api/internal/core/apperr"
	"tour-booking-api/internal/query"
)

// page 按 Mongo 的 find 语义做过滤、排序、跳过、截断；filters 之间是 AND。
// 只支持查询构建器和仓储会生成的操作符：$eq $ne $gt $gte $lt $lte $geoWithin/$centerSphere
func page[T any](docs []T, spec query.Spec, filters ...bson.M) ([]T, error) {
	type row struct {
		v T
		m bson.M
	}
	rows := make([]row, 0, len(docs))
	for _, d := range docs {
		m, err := asMap(d)
		if err != nil {
			return nil, err
		}
		ok, err := matchesAll(m, append(filters, spec.Filter))
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row{v: d, m: m})
		}
	}
	// 没给排序时按 _id，相当于插入顺序
	order := append(append(bson.D{}, spec.Sort...), bson.E{Key: "_id", Value: 1})
	sort.SliceStable(rows, func(i, j int) bool {
		for _, e := range order {
			c := compare(lookup(rows[i].m, e.Key), lookup(rows[j].m, e.Key))
			if c == 0 {
				continue
			}
			if dir, _ := toFloat(e.Value); dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	skip := min(max(spec.Skip, 0), int64(len(rows)))
	rows = rows[skip:]
	if spec.Limit > 0 && int64(len(rows)) > spec.Limit {
		rows = rows[:spec.Limit]
	}
	out := make([]T, len(rows))
	for i := range rows {
		out[i] = rows[i].v
	}
	return out, nil
}

// asMap 走一遍 bson 编解码，得到和存储端一致的字段名与值类型
func asMap(v any) (bson.M, error) {
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, apperr.Internal("encode document", err)
	}
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return nil, apperr.Internal("decode document", err)
	}
	return m, nil
}

func lookup(m bson.M, path string) any {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		doc, ok := cur.(bson.M)
		if !ok {
			return nil
		}
		cur = doc[part]
	}
	return cur
}

func matchesAll(doc bson.M, filters []bson.M) (bool, error) {
	for _, f := range filters {
		ok, err := matches(doc, f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matches(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		val := lookup(doc, key)
		ops, isOps := cond.(bson.M)
		if !isOps || !operatorDoc(ops) {
			if !anyElem(val, func(v any) bool { return equal(v, cond) }) {
				return false, nil
			}
			continue
		}
		for op, arg := range ops {
			ok, err := apply(op, val, arg)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

func operatorDoc(m bson.M) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(m) > 0
}

func apply(op string, val, arg any) (bool, error) {
	switch op {
	case "$eq":
		return anyElem(val, func(v any) bool { return equal(v, arg) }), nil
	case "$ne":
		return !anyElem(val, func(v any) bool { return equal(v, arg) }), nil
	case "$gt", "$gte", "$lt", "$lte":
		return anyElem(val, func(v any) bool {
			if v == nil || rank(v) != rank(arg) {
				return false
			}
			c := compare(v, arg)
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			default:
				return c <= 0
			}
		}), nil
	case "$geoWithin":
		return geoWithin(val, arg)
	default:
		return false, apperr.Internal(fmt.Sprintf("memory store: unsupported operator %s", op), nil)
	}
}

// anyElem 数组字段只要有一个元素满足即可
func anyElem(val any, pred func(any) bool) bool {
	if arr, ok := val.(bson.A); ok {
		for _, v := range arr {
			if pred(v) {
				return true
			}
		}
		return false
	}
	return pred(val)
}

// geoWithin 仅支持 {$centerSphere: [[lng, lat], radians]}
func geoWithin(val, arg any) (bool, error) {
	spec, _ := arg.(bson.M)
	sphere, ok := spec["$centerSphere"].(bson.A)
	if !ok || len(sphere) != 2 {
		return false, apperr.Internal("memory store: only $centerSphere is supported", nil)
	}
	center, _ := sphere[0].(bson.A)
	radius, okR := toFloat(sphere[1])
	if len(center) != 2 || !okR {
		return false, apperr.Internal("memory store: malformed $centerSphere", nil)
	}
	lng0, _ := toFloat(center[0])
	lat0, _ := toFloat(center[1])

	point, _ := val.(bson.M)
	coords, _ := point["coordinates"].(bson.A)
	if len(coords) != 2 {
		return false, nil
	}
	lng, _ := toFloat(coords[0])
	lat, _ := toFloat(coords[1])
	return centralAngle(lng0, lat0, lng, lat) <= radius, nil
}

// centralAngle 两点间的球面圆心角（弧度），haversine
func centralAngle(lng1, lat1, lng2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * math.Asin(math.Min(1, math.Sqrt(a)))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// rank 跨类型比较时的顺序，大致对应 BSON 的类型排序
func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	if _, ok := toTime(v); ok {
		return 5
	}
	switch v.(type) {
	case string:
		return 2
	case primitive.ObjectID:
		return 3
	case bool:
		return 4
	}
	return 6
}

func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case 1:
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		x, y := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return strings.Compare(x.Hex(), y.Hex())
	case 4:
		x, y := a.(bool), b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	case 5:
		x, _ := toTime(a)
		y, _ := toTime(b)
		return x.Compare(y)
	}
	return 0
}

func equal(a, b any) bool {
	if rank(a) == 6 || rank(b) == 6 {
		return false
	}
	return rank(a) == rank(b) && compare(a, b) == 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
