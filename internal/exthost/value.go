package exthost

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// toGo converts a Lua value to a JSON-compatible Go value. Tables with
// keys 1..n become slices; other tables become maps.
func toGo(v lua.LValue) any {
	return toGoVisited(v, map[*lua.LTable]bool{})
}

func toGoVisited(v lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := v.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = toGoVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch k := k.(type) {
		case lua.LString:
			key = string(k)
		case lua.LNumber:
			f := float64(k)
			if f == math.Trunc(f) {
				key = strconv.FormatInt(int64(f), 10)
			} else {
				key = strconv.FormatFloat(f, 'g', -1, 64)
			}
		default:
			key = k.String()
		}
		m[key] = toGoVisited(v, visited)
	})
	return m
}

// toLua converts a Go value to Lua. Values that are not plain JSON types
// are converted through their JSON encoding.
func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []any:
		t := L.CreateTable(len(v), 0)
		for i, e := range v {
			t.RawSetInt(i+1, toLua(L, e))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(v))
		for k, e := range v {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	case json.RawMessage:
		var decoded any
		if len(v) == 0 || json.Unmarshal(v, &decoded) != nil {
			return lua.LNil
		}
		return toLua(L, decoded)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return lua.LString(fmt.Sprint(v))
		}
		return toLua(L, json.RawMessage(data))
	}
}
