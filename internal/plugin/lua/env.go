// Package lua runs plugin scripts inside a capability-restricted
// gopher-lua environment.
//
// A sandboxed Env opens only the base, table, string, and math
// libraries, replaces print, exposes a read-only slice of os, and traps
// every global access the script did not define. Execution is bounded
// by a budget enforced at the interpreter's instruction checkpoints.
// Trusted plugins get a stock interpreter with no traps and no budget.
//
// gopher-lua states are not goroutine-safe, and host callbacks can
// re-enter the interpreter (a state watcher firing while a script call
// is on the stack), so an Env is confined to a single goroutine rather
// than locked. The registry provides that confinement.
package lua

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DeclGlobal is the one global a sandboxed script may create: the table
// declaring the plugin's metadata and hooks.
const DeclGlobal = "plugin"

// DefaultBudget bounds a single sandboxed call unless configured
// otherwise.
const DefaultBudget = 100 * time.Millisecond

// LogFunc receives a line produced by the script's print.
type LogFunc func(msg string)

// Env is a single plugin's Lua environment.
type Env struct {
	L       *lua.LState
	name    string
	budget  time.Duration
	trusted bool
	logf    LogFunc
	start   time.Time
	closed  bool

	// depth tracks call nesting so the budget is armed once, at the
	// outermost call.
	depth int

	// escaped is set by the strict-global traps while a call is on the
	// stack, then promoted to the call's error.
	escaped *EscapeError
}

// Option configures an Env.
type Option func(*Env)

// WithBudget sets the per-call execution budget. Zero disables it.
func WithBudget(d time.Duration) Option {
	return func(e *Env) { e.budget = d }
}

// WithTrusted builds a full-featured interpreter: all standard
// libraries, no global traps, no budget.
func WithTrusted() Option {
	return func(e *Env) { e.trusted = true }
}

// WithLog routes the script's print output.
func WithLog(fn LogFunc) Option {
	return func(e *Env) { e.logf = fn }
}

// NewEnv builds the environment for one plugin. Sandboxed envs are not
// sealed yet; install host modules with SetModule, then call Seal
// before running any script.
func NewEnv(pluginName string, opts ...Option) *Env {
	e := &Env{
		name:   pluginName,
		budget: DefaultBudget,
		logf:   func(string) {},
		start:  time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.trusted {
		e.L = lua.NewState()
		return e
	}

	e.L = lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(e.L)
	lua.OpenTable(e.L)
	lua.OpenString(e.L)
	lua.OpenMath(e.L)

	// Chunk loaders would bypass the bytecode check and the traps;
	// collectgarbage pokes at the runtime.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage"} {
		e.L.SetGlobal(name, lua.LNil)
	}

	e.installPrint()
	e.installOS()
	return e
}

// Name returns the plugin name the env was built for.
func (e *Env) Name() string { return e.name }

// Trusted reports whether the env skips sandboxing.
func (e *Env) Trusted() bool { return e.trusted }

// SetModule installs a table as a global, bypassing the strict traps.
// Works both before and after Seal.
func (e *Env) SetModule(name string, tbl *lua.LTable) {
	if e.closed {
		return
	}
	e.globals().RawSetString(name, tbl)
}

// NewTable returns a fresh table bound to this env's state.
func (e *Env) NewTable() *lua.LTable {
	return e.L.NewTable()
}

// NewFunction wraps a Go function for this env's state.
func (e *Env) NewFunction(fn lua.LGFunction) *lua.LFunction {
	return e.L.NewFunction(fn)
}

// Seal installs the strict global traps. After Seal, reading a global
// the script never defined, or creating any global other than the
// plugin declaration table, fails the call with an EscapeError. Trusted
// envs are never sealed.
func (e *Env) Seal() {
	if e.trusted {
		return
	}

	g := e.globals()
	mt := e.L.NewTable()
	e.L.SetField(mt, "__index", e.L.NewFunction(func(L *lua.LState) int {
		sym := L.Get(2).String()
		e.escaped = &EscapeError{Plugin: e.name, Symbol: sym}
		L.RaiseError("undefined global %q", sym)
		return 0
	}))
	e.L.SetField(mt, "__newindex", e.L.NewFunction(func(L *lua.LState) int {
		sym := L.Get(2).String()
		if sym == DeclGlobal {
			g.RawSet(L.Get(2), L.Get(3))
			return 0
		}
		e.escaped = &EscapeError{Plugin: e.name, Symbol: sym, Write: true}
		L.RaiseError("attempt to create global %q", sym)
		return 0
	}))
	// A protected metatable keeps scripts from detaching the traps
	// with setmetatable(_G, nil).
	e.L.SetField(mt, "__metatable", lua.LString("protected"))
	e.L.SetMetatable(g, mt)
}

// LoadFile reads and runs a script file. The chunk must be textual Lua
// source; precompiled bytecode is rejected before it reaches the VM.
func (e *Env) LoadFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", e.name, err)
	}
	return e.LoadScript(src, "@"+filepath.Base(path))
}

// LoadScript compiles and runs source under the chunk name.
func (e *Env) LoadScript(src []byte, chunkName string) error {
	if len(src) > 0 && src[0] == 0x1b {
		return fmt.Errorf("plugin %s: %w", e.name, ErrBytecode)
	}
	if e.closed {
		return ErrEnvClosed
	}

	fn, err := e.L.Load(bytes.NewReader(src), chunkName)
	if err != nil {
		return fmt.Errorf("plugin %s: %w", e.name, err)
	}
	return e.run(func() error {
		e.L.Push(fn)
		return e.L.PCall(0, 0, nil)
	})
}

// Call invokes a Lua function value with the given arguments, under the
// execution budget, and returns whatever it returns. Safe to call from
// inside a host function already running on this env's stack.
func (e *Env) Call(fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	if e.closed {
		return nil, ErrEnvClosed
	}

	top := e.L.GetTop()
	var results []lua.LValue
	err := e.run(func() error {
		e.L.Push(fn)
		for _, arg := range args {
			e.L.Push(arg)
		}
		if err := e.L.PCall(len(args), lua.MultRet, nil); err != nil {
			return err
		}
		n := e.L.GetTop() - top
		results = make([]lua.LValue, n)
		for i := 0; i < n; i++ {
			results[i] = e.L.Get(top + i + 1)
		}
		e.L.Pop(n)
		return nil
	})
	if err != nil {
		e.L.SetTop(top)
		return nil, err
	}
	return results, nil
}

// RawGlobal reads a global without touching the strict traps.
func (e *Env) RawGlobal(name string) lua.LValue {
	if e.closed {
		return lua.LNil
	}
	return e.globals().RawGetString(name)
}

// Closed reports whether Close has been called.
func (e *Env) Closed() bool {
	return e.closed
}

// Close shuts the interpreter down. Idempotent.
func (e *Env) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.L.Close()
}

// run executes fn with panic recovery and classifies the failure. The
// budget is armed only at the outermost call so nested host callbacks
// share the outer deadline.
func (e *Env) run(fn func() error) error {
	e.depth++
	defer func() { e.depth-- }()

	var ctx context.Context
	if !e.trusted && e.budget > 0 && e.depth == 1 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), e.budget)
		defer cancel()
		e.L.SetContext(ctx)
		defer e.L.RemoveContext()
	}

	err := protect(fn)

	if esc := e.escaped; esc != nil {
		e.escaped = nil
		return esc
	}
	if ctx != nil && ctx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Plugin: e.name, Budget: e.budget}
	}
	if err != nil {
		return fmt.Errorf("plugin %s: %w", e.name, err)
	}
	return nil
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (e *Env) globals() *lua.LTable {
	return e.L.Get(lua.GlobalsIndex).(*lua.LTable)
}

// installPrint routes print through the host's logger instead of
// stdout.
func (e *Env) installPrint() {
	e.L.SetGlobal("print", e.L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := 1; i <= L.GetTop(); i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		e.logf(strings.Join(parts, "\t"))
		return 0
	}))
}

// installOS exposes the clock-reading slice of os and nothing else.
func (e *Env) installOS() {
	osMod := e.L.NewTable()
	e.L.SetField(osMod, "time", e.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	e.L.SetField(osMod, "clock", e.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Since(e.start).Seconds()))
		return 1
	}))
	e.L.SetField(osMod, "date", e.L.NewFunction(func(L *lua.LState) int {
		format := L.OptString(1, "%c")
		L.Push(lua.LString(formatDate(format, time.Now())))
		return 1
	}))
	e.L.SetGlobal("os", osMod)
}

// formatDate handles the strftime specifiers plugins actually use.
func formatDate(format string, t time.Time) string {
	if format == "%c" {
		return t.Format("Mon Jan  2 15:04:05 2006")
	}
	repl := strings.NewReplacer(
		"%Y", "2006", "%y", "06",
		"%m", "01", "%d", "02",
		"%H", "15", "%M", "04", "%S", "05",
		"%%", "%",
	)
	return t.Format(repl.Replace(format))
}
