package plugin

import (
	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/fable/internal/hook"
	"github.com/dshills/fable/internal/plugin/lifecycle"
	"github.com/dshills/fable/internal/plugin/lua"
)

// Plugin is one registered plugin: its on-disk candidate, its parsed
// declaration, its Lua environment, and its lifecycle machine.
type Plugin struct {
	candidate Candidate
	decl      *Declaration
	env       *lua.Env
	machine   *lifecycle.Machine

	// ctx is created the first time a lifecycle hook fires and stays
	// nil for plugins that never advance past loaded.
	ctx *Context

	// busIDs are the event hooks registered on the bus from the
	// declaration, removed again on destroy via the context's scope.
	busIDs []hook.ID
}

// Name returns the plugin's name.
func (p *Plugin) Name() string { return p.candidate.Name }

// Version returns the declared version string.
func (p *Plugin) Version() string {
	if p.decl == nil {
		return ""
	}
	return p.decl.Version
}

// State returns the plugin's current lifecycle state.
func (p *Plugin) State() lifecycle.State { return p.machine.Current() }

// Declaration returns the parsed declaration, nil before loading.
func (p *Plugin) Declaration() *Declaration { return p.decl }

// Context returns the plugin's context, nil until the first lifecycle
// hook has fired.
func (p *Plugin) Context() *Context { return p.ctx }

// Trusted reports whether the plugin runs outside the sandbox.
func (p *Plugin) Trusted() bool { return p.env != nil && p.env.Trusted() }

// ErrorMessage returns why the plugin entered the error state, if it
// did.
func (p *Plugin) ErrorMessage() string { return p.machine.ErrorMessage() }

// History returns the plugin's recorded lifecycle transitions.
func (p *Plugin) History() []lifecycle.Transition { return p.machine.History() }

// lifecycleHooks are invoked directly at transitions; every other hook
// in a declaration is an event subscription on the bus.
var lifecycleHooks = map[string]bool{
	lifecycle.HookLoad:    true,
	lifecycle.HookInit:    true,
	lifecycle.HookEnable:  true,
	lifecycle.HookDisable: true,
	lifecycle.HookDestroy: true,
}

// callLifecycleHook runs the named lifecycle hook if the declaration
// binds one. A missing hook is a no-op.
func (p *Plugin) callLifecycleHook(name string) error {
	if p.decl == nil {
		return nil
	}
	for _, h := range p.decl.Hooks {
		if h.Event != name {
			continue
		}
		_, err := p.env.Call(h.Fn)
		return err
	}
	return nil
}

// busHandler wraps a declared Lua hook as a bus handler: the payload
// crosses into Lua, and for transform events whatever the script
// returns crosses back.
func (p *Plugin) busHandler(decl HookDecl) hook.Handler {
	return func(event string, value any) (any, error) {
		results, err := p.env.Call(decl.Fn, lua.ToLua(p.env.L, value))
		if err != nil {
			return nil, err
		}
		if len(results) == 0 || results[0] == glua.LNil {
			return nil, nil
		}
		return lua.ToGo(results[0]), nil
	}
}
