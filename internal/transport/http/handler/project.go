package handler

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"

	"tour-booking-api/internal/query"
)

// 投影键是存储字段名，输出键是 JSON 名
var jsonName = map[string]string{query.IDField: "id"}

// companions 虚拟字段跟随其来源字段
var companions = map[string][]string{"duration": {"durationWeeks"}}

// Project 按 fields 参数裁剪输出；默认投影（只排除 __v）原样返回
func Project[T any](items []T, proj bson.D) (any, error) {
	include, keys := mode(proj)
	if keys == nil {
		return items, nil
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for i := range items {
		b, err := json.Marshal(items[i])
		if err != nil {
			return nil, err
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		for k := range m {
			_, listed := keys[k]
			if listed != include {
				delete(m, k)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// mode 返回 (是否包含模式, 涉及的 JSON 键)；nil 表示无需裁剪
func mode(proj bson.D) (bool, map[string]struct{}) {
	keys := map[string]struct{}{}
	include := false
	for _, e := range proj {
		if e.Key == query.VersionField {
			continue
		}
		if v, ok := e.Value.(int); ok && v == 1 {
			include = true
		}
	}
	for _, e := range proj {
		if e.Key == query.VersionField {
			continue
		}
		v, _ := e.Value.(int)
		if include && v == 0 {
			// 包含模式下只可能出现 -_id
			continue
		}
		name := e.Key
		if n, ok := jsonName[name]; ok {
			name = n
		}
		keys[name] = struct{}{}
		for _, c := range companions[e.Key] {
			keys[c] = struct{}{}
		}
	}
	if include {
		if !excludesID(proj) {
			keys["id"] = struct{}{}
		}
		return true, keys
	}
	if len(keys) == 0 {
		return false, nil
	}
	return false, keys
}

func excludesID(proj bson.D) bool {
	for _, e := range proj {
		if v, ok := e.Value.(int); ok && e.Key == query.IDField && v == 0 {
			return true
		}
	}
	return false
}
