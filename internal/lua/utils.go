package lua

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// ToLuaValue converts config settings and other plain Go data into Lua.
func ToLuaValue(L *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []string:
		table := L.CreateTable(len(v), 0)
		for _, s := range v {
			table.Append(lua.LString(s))
		}
		return table
	case map[string]string:
		table := L.CreateTable(0, len(v))
		for key, val := range v {
			table.RawSetString(key, lua.LString(val))
		}
		return table
	case map[string]interface{}:
		table := L.CreateTable(0, len(v))
		for key, val := range v {
			table.RawSetString(key, ToLuaValue(L, val))
		}
		return table
	case []interface{}:
		table := L.CreateTable(len(v), 0)
		for _, val := range v {
			table.Append(ToLuaValue(L, val))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// ToGoValue converts a Lua value back. Tables with a sequence part become
// []interface{}; other tables become maps keyed by their string keys. An
// empty table is an empty map.
func ToGoValue(lv lua.LValue) interface{} {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if maxn := v.MaxN(); maxn > 0 {
			slice := make([]interface{}, 0, maxn)
			for i := 1; i <= maxn; i++ {
				slice = append(slice, ToGoValue(v.RawGetInt(i)))
			}
			return slice
		}

		m := make(map[string]interface{})
		v.ForEach(func(key, value lua.LValue) {
			if keyStr, ok := key.(lua.LString); ok {
				m[string(keyStr)] = ToGoValue(value)
			}
		})
		return m
	default:
		return nil
	}
}

// ToGoSlice reads a result table as a list. Any empty table is an empty
// list.
func ToGoSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		if len(v) == 0 {
			return []interface{}{}, nil
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("expected a list, got a table with keys %v", keys)
	case nil:
		return nil, fmt.Errorf("expected a list, got nil")
	default:
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
}
