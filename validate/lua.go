package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/reoring/formskema/fieldpath"
	"github.com/reoring/formskema/i18n"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// LuaScript is a compiled Lua validator. The chunk sees the globals value,
// values and field, and returns one of:
//
//	nil or true                 valid
//	false                       invalid, generic message
//	"message"                   invalid with message
//	{ok=false, message="..."}   invalid with message
//	{errors={["a.b"]="..."}}    invalid with per-path messages
type LuaScript struct {
	name  string
	proto *lua.FunctionProto
}

// CompileLua parses and compiles src once; the result is safe to share
// between goroutines since every run gets its own interpreter state.
func CompileLua(name, src string) (*LuaScript, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse lua validator %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile lua validator %s: %w", name, err)
	}
	return &LuaScript{name: name, proto: proto}, nil
}

// MustCompileLua is CompileLua that panics on error.
func MustCompileLua(name, src string) *LuaScript {
	s, err := CompileLua(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the chunk name given at compile time.
func (s *LuaScript) Name() string { return s.name }

// newSandbox opens only the side-effect free standard libraries.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func runLua(ctx context.Context, s *LuaScript, c Context) Result {
	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	L.SetGlobal("value", toLua(L, c.Value))
	L.SetGlobal("values", toLua(L, c.Values))
	L.SetGlobal("field", lua.LString(c.FieldName))

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return failure(c, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return fromLua(c, ret)
}

func fromLua(c Context, ret lua.LValue) Result {
	switch t := ret.(type) {
	case *lua.LNilType:
		return Ok()
	case lua.LBool:
		if t {
			return Ok()
		}
		return Result{Valid: false, Errors: map[string]string{c.target(): i18n.T("invalid", nil)}}
	case lua.LString:
		if t == "" {
			return Ok()
		}
		return Result{Valid: false, Errors: map[string]string{c.target(): string(t)}}
	case *lua.LTable:
		errs := map[string]string{}
		if tbl, ok := t.RawGetString("errors").(*lua.LTable); ok {
			msgs := map[string]string{}
			var keys []string
			tbl.ForEach(func(k, v lua.LValue) {
				if s, ok := v.(lua.LString); ok {
					keys = append(keys, k.String())
					msgs[k.String()] = string(s)
				}
			})
			sort.Strings(keys)
			for _, k := range keys {
				put(errs, c.at(k), msgs[k])
			}
		}
		msg, _ := t.RawGetString("message").(lua.LString)
		ok := t.RawGetString("ok")
		if msg != "" {
			put(errs, c.target(), string(msg))
		} else if ok == lua.LFalse && len(errs) == 0 {
			errs[c.target()] = i18n.T("invalid", nil)
		}
		return fromMap(errs)
	}
	return failure(c, fmt.Errorf("unexpected lua result type %s", ret.Type()))
}

// toLua converts a plain value tree into Lua values. Arrays become 1-based
// sequences.
func toLua(L *lua.LState, v any) lua.LValue {
	switch t := fieldpath.Normalize(v).(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case string:
		return lua.LString(t)
	case float64:
		return lua.LNumber(t)
	case float32:
		return lua.LNumber(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case int32:
		return lua.LNumber(t)
	case uint:
		return lua.LNumber(t)
	case uint64:
		return lua.LNumber(t)
	case []any:
		tbl := L.CreateTable(len(t), 0)
		for i, e := range t {
			tbl.RawSetInt(i+1, toLua(L, e))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(t))
		for k, e := range t {
			tbl.RawSetString(k, toLua(L, e))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(t))
	}
}
