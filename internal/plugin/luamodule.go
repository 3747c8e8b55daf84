package plugin

import (
	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/fable/internal/hook"
	"github.com/dshills/fable/internal/plugin/lifecycle"
	"github.com/dshills/fable/internal/plugin/lua"
)

// hostView is what the fable module needs to know about the rest of the
// registry.
type hostView interface {
	PluginState(name string) (lifecycle.State, bool)
	PluginsByState(s lifecycle.State) []string
	PluginAPI(name string) (map[string]APIFunc, bool)
}

// installModule builds the `fable` table and injects it into the
// plugin's environment. Capability failures surface as Lua errors so a
// script cannot silently ignore them.
func installModule(env *lua.Env, ctx *Context, host hostView) {
	mod := env.NewTable()
	mod.RawSetString("name", glua.LString(ctx.Plugin()))

	caps := env.NewTable()
	for i, c := range ctx.Capabilities() {
		caps.RawSetInt(i+1, glua.LString(string(c)))
	}
	mod.RawSetString("capabilities", caps)

	mod.RawSetString("state", stateTable(env, ctx))
	mod.RawSetString("storage", storageTable(env, ctx))
	mod.RawSetString("log", logTable(env, ctx))
	mod.RawSetString("hooks", hooksTable(env, ctx))
	mod.RawSetString("plugins", pluginsTable(env, host))

	env.SetModule("fable", mod)
}

func stateTable(env *lua.Env, ctx *Context) *glua.LTable {
	t := env.NewTable()
	t.RawSetString("get", env.NewFunction(func(L *glua.LState) int {
		key := L.CheckString(1)
		v, err := ctx.StateGet(key)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(lua.ToLua(L, v))
		return 1
	}))
	t.RawSetString("set", env.NewFunction(func(L *glua.LState) int {
		key := L.CheckString(1)
		value := lua.ToGo(L.Get(2))
		if err := ctx.StateSet(key, value); err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		return 0
	}))
	t.RawSetString("has", env.NewFunction(func(L *glua.LState) int {
		key := L.CheckString(1)
		ok, err := ctx.StateHas(key)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(glua.LBool(ok))
		return 1
	}))
	t.RawSetString("delete", env.NewFunction(func(L *glua.LState) int {
		if err := ctx.StateDelete(L.CheckString(1)); err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		return 0
	}))
	t.RawSetString("all", env.NewFunction(func(L *glua.LState) int {
		all, err := ctx.StateAll()
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(lua.ToLua(L, map[string]any(all)))
		return 1
	}))
	t.RawSetString("watch", env.NewFunction(func(L *glua.LState) int {
		key := L.CheckString(1)
		fn := L.CheckFunction(2)
		id, err := ctx.Watch(key, func(value any) {
			env.Call(fn, lua.ToLua(env.L, value)) //nolint:errcheck
		})
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(glua.LString(string(id)))
		return 1
	}))
	return t
}

func storageTable(env *lua.Env, ctx *Context) *glua.LTable {
	t := env.NewTable()
	t.RawSetString("get", env.NewFunction(func(L *glua.LState) int {
		L.Push(lua.ToLua(L, ctx.StorageGet(L.CheckString(1))))
		return 1
	}))
	t.RawSetString("set", env.NewFunction(func(L *glua.LState) int {
		ctx.StorageSet(L.CheckString(1), lua.ToGo(L.Get(2)))
		return 0
	}))
	t.RawSetString("delete", env.NewFunction(func(L *glua.LState) int {
		ctx.StorageDelete(L.CheckString(1))
		return 0
	}))
	t.RawSetString("all", env.NewFunction(func(L *glua.LState) int {
		L.Push(lua.ToLua(L, map[string]any(ctx.StorageAll())))
		return 1
	}))
	t.RawSetString("clear", env.NewFunction(func(L *glua.LState) int {
		ctx.StorageClear()
		return 0
	}))
	return t
}

func logTable(env *lua.Env, ctx *Context) *glua.LTable {
	t := env.NewTable()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		level := level
		t.RawSetString(level, env.NewFunction(func(L *glua.LState) int {
			msg := L.CheckString(1)
			switch level {
			case "debug":
				ctx.Log().Debug(msg)
			case "warn":
				ctx.Log().Warn(msg)
			case "error":
				ctx.Log().Error(msg)
			default:
				ctx.Log().Info(msg)
			}
			return 0
		}))
	}
	return t
}

func hooksTable(env *lua.Env, ctx *Context) *glua.LTable {
	t := env.NewTable()
	t.RawSetString("register", env.NewFunction(func(L *glua.LState) int {
		event := L.CheckString(1)
		fn := L.CheckFunction(2)
		priority := L.OptInt(3, -1)

		handler := func(event string, value any) (any, error) {
			results, err := env.Call(fn, lua.ToLua(env.L, value))
			if err != nil {
				return nil, err
			}
			if len(results) == 0 || results[0] == glua.LNil {
				return nil, nil
			}
			return lua.ToGo(results[0]), nil
		}

		id, err := ctx.RegisterHook(event, handler, priority)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(glua.LString(string(id)))
		return 1
	}))
	t.RawSetString("unregister", env.NewFunction(func(L *glua.LState) int {
		id := hook.ID(L.CheckString(1))
		L.Push(glua.LBool(ctx.UnregisterHook(id)))
		return 1
	}))
	return t
}

func pluginsTable(env *lua.Env, host hostView) *glua.LTable {
	t := env.NewTable()
	t.RawSetString("list", env.NewFunction(func(L *glua.LState) int {
		names := host.PluginsByState(lifecycle.StateEnabled)
		out := L.NewTable()
		for i, name := range names {
			out.RawSetInt(i+1, glua.LString(name))
		}
		L.Push(out)
		return 1
	}))
	t.RawSetString("get", env.NewFunction(func(L *glua.LState) int {
		api, ok := host.PluginAPI(L.CheckString(1))
		if !ok {
			L.Push(glua.LNil)
			return 1
		}
		proxy := L.NewTable()
		for member, call := range api {
			call := call
			proxy.RawSetString(member, env.NewFunction(func(L *glua.LState) int {
				args := make([]any, L.GetTop())
				for i := 1; i <= L.GetTop(); i++ {
					args[i-1] = lua.ToGo(L.Get(i))
				}
				result, err := call(args...)
				if err != nil {
					L.RaiseError("%s", err.Error())
					return 0
				}
				L.Push(lua.ToLua(L, result))
				return 1
			}))
		}
		L.Push(proxy)
		return 1
	}))
	t.RawSetString("state", env.NewFunction(func(L *glua.LState) int {
		state, ok := host.PluginState(L.CheckString(1))
		if !ok {
			L.Push(glua.LNil)
			return 1
		}
		L.Push(glua.LString(string(state)))
		return 1
	}))
	t.RawSetString("is_enabled", env.NewFunction(func(L *glua.LState) int {
		state, ok := host.PluginState(L.CheckString(1))
		L.Push(glua.LBool(ok && state == lifecycle.StateEnabled))
		return 1
	}))
	return t
}
