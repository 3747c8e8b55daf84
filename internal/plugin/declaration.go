package plugin

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/fable/internal/plugin/lifecycle"
	"github.com/dshills/fable/internal/plugin/lua"
	"github.com/dshills/fable/internal/plugin/resolve"
)

// namePattern constrains plugin names: lowercase, digits, hyphens,
// starting with a letter.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// HookDecl is one hook binding from a plugin declaration.
type HookDecl struct {
	Event    string
	Fn       *glua.LFunction
	Priority int
}

// Declaration is the metadata a plugin script publishes through its
// `plugin` global.
type Declaration struct {
	Name         string
	Version      string
	Author       string
	Description  string
	Dependencies map[string]string
	Capabilities []Capability
	Hooks        []HookDecl

	// API is the public surface other enabled plugins may call.
	API map[string]*glua.LFunction
}

// HasCapability reports whether the declaration names the capability.
func (d *Declaration) HasCapability(c Capability) bool {
	for _, dc := range d.Capabilities {
		if dc == c {
			return true
		}
	}
	return false
}

// ErrInvalidDeclaration is the sentinel wrapped by ValidationError.
var ErrInvalidDeclaration = errors.New("invalid plugin declaration")

// FieldError names one rejected declaration field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationError aggregates every problem found in a declaration so a
// plugin author sees them all at once.
type ValidationError struct {
	Plugin string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("plugin %s: invalid declaration: %s", e.Plugin, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDeclaration }

// ParseDeclaration reads and validates the `plugin` global left behind
// by a script. The expectedName is the plugin's directory name; the
// declaration must match it.
func ParseDeclaration(env *lua.Env, expectedName string) (*Declaration, error) {
	raw := env.RawGlobal(lua.DeclGlobal)
	tbl, ok := raw.(*glua.LTable)
	if !ok {
		return nil, &ValidationError{Plugin: expectedName, Fields: []FieldError{
			{Field: lua.DeclGlobal, Reason: fmt.Sprintf("script must set a %q table, got %s", lua.DeclGlobal, raw.Type())},
		}}
	}

	decl := &Declaration{
		Name:        tblString(tbl, "name"),
		Version:     tblString(tbl, "version"),
		Author:      tblString(tbl, "author"),
		Description: tblString(tbl, "description"),
	}

	var fields []FieldError
	addErr := func(field, reason string) {
		fields = append(fields, FieldError{Field: field, Reason: reason})
	}

	switch {
	case decl.Name == "":
		addErr("name", "required")
	case !namePattern.MatchString(decl.Name):
		addErr("name", fmt.Sprintf("%q must match %s", decl.Name, namePattern))
	case decl.Name != expectedName:
		addErr("name", fmt.Sprintf("%q does not match directory %q", decl.Name, expectedName))
	}

	if decl.Version == "" {
		addErr("version", "required")
	} else if _, err := resolve.ParseVersion(decl.Version); err != nil {
		addErr("version", fmt.Sprintf("%q is not MAJOR.MINOR.PATCH", decl.Version))
	}

	decl.Dependencies = parseDependencies(tbl, addErr)
	decl.Capabilities = parseCapabilities(tbl, addErr)
	decl.API = parseAPI(tbl, addErr)

	var hookErr []FieldError
	decl.Hooks, hookErr = parseHooks(tbl)
	fields = append(fields, hookErr...)

	// Lifecycle callbacks may also sit at the top level of the
	// declaration, next to name and version.
	for _, name := range lifecycleHookNames {
		raw := tbl.RawGetString(name)
		if raw == glua.LNil {
			continue
		}
		fn, isFn := raw.(*glua.LFunction)
		if !isFn {
			addErr(name, "must be a function")
			continue
		}
		if hasHook(decl.Hooks, name) {
			addErr(name, "declared both at top level and in hooks")
			continue
		}
		decl.Hooks = append(decl.Hooks, HookDecl{Event: name, Fn: fn, Priority: -1})
	}
	sort.Slice(decl.Hooks, func(i, j int) bool { return decl.Hooks[i].Event < decl.Hooks[j].Event })

	// Trust is granted by the host configuration, never claimed by the
	// script itself.
	if tbl.RawGetString("_trusted") != glua.LNil && !env.Trusted() {
		addErr("_trusted", "reserved, set by the host")
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Plugin: expectedName, Fields: fields}
	}
	return decl, nil
}

func parseDependencies(tbl *glua.LTable, addErr func(field, reason string)) map[string]string {
	raw := tbl.RawGetString("dependencies")
	if raw == glua.LNil {
		return nil
	}
	depTbl, ok := raw.(*glua.LTable)
	if !ok {
		addErr("dependencies", "must be a table of name = constraint pairs")
		return nil
	}

	deps := make(map[string]string)
	depTbl.ForEach(func(k, v glua.LValue) {
		name := k.String()
		if _, isStr := k.(glua.LString); !isStr {
			addErr("dependencies", fmt.Sprintf("key %q must be a string", name))
			return
		}
		constraint, isStr := v.(glua.LString)
		if !isStr {
			addErr("dependencies."+name, "constraint must be a string")
			return
		}
		if err := resolve.ValidateConstraint(string(constraint)); err != nil {
			addErr("dependencies."+name, fmt.Sprintf("bad constraint %q", string(constraint)))
			return
		}
		deps[name] = string(constraint)
	})
	if len(deps) == 0 {
		return nil
	}
	return deps
}

func parseCapabilities(tbl *glua.LTable, addErr func(field, reason string)) []Capability {
	raw := tbl.RawGetString("capabilities")
	if raw == glua.LNil {
		return nil
	}
	capTbl, ok := raw.(*glua.LTable)
	if !ok {
		addErr("capabilities", "must be an array of capability names")
		return nil
	}

	var caps []Capability
	seen := map[Capability]bool{}
	for i := 1; i <= capTbl.Len(); i++ {
		v := capTbl.RawGetInt(i)
		c := Capability(v.String())
		if _, isStr := v.(glua.LString); !isStr || !c.Valid() {
			addErr("capabilities", fmt.Sprintf("unknown capability %q", v.String()))
			continue
		}
		if !seen[c] {
			seen[c] = true
			caps = append(caps, c)
		}
	}
	return caps
}

// lifecycleHookNames lists the callbacks accepted as top-level
// declaration fields, in firing order.
var lifecycleHookNames = []string{
	lifecycle.HookLoad, lifecycle.HookInit, lifecycle.HookEnable,
	lifecycle.HookDisable, lifecycle.HookDestroy,
}

func hasHook(hooks []HookDecl, event string) bool {
	for _, h := range hooks {
		if h.Event == event {
			return true
		}
	}
	return false
}

func parseAPI(tbl *glua.LTable, addErr func(field, reason string)) map[string]*glua.LFunction {
	raw := tbl.RawGetString("api")
	if raw == glua.LNil {
		return nil
	}
	apiTbl, ok := raw.(*glua.LTable)
	if !ok {
		addErr("api", "must be a table of name = function pairs")
		return nil
	}

	api := make(map[string]*glua.LFunction)
	apiTbl.ForEach(func(k, v glua.LValue) {
		member := k.String()
		if _, isStr := k.(glua.LString); !isStr {
			addErr("api", fmt.Sprintf("member %q must be keyed by a string", member))
			return
		}
		fn, isFn := v.(*glua.LFunction)
		if !isFn {
			addErr("api."+member, "must be a function")
			return
		}
		api[member] = fn
	})
	if len(api) == 0 {
		return nil
	}
	return api
}

// parseHooks accepts either `on_x = function` or
// `on_x = { fn = function, priority = n }`.
func parseHooks(tbl *glua.LTable) ([]HookDecl, []FieldError) {
	raw := tbl.RawGetString("hooks")
	if raw == glua.LNil {
		return nil, nil
	}
	hookTbl, ok := raw.(*glua.LTable)
	if !ok {
		return nil, []FieldError{{Field: "hooks", Reason: "must be a table keyed by event name"}}
	}

	var hooks []HookDecl
	var fields []FieldError
	hookTbl.ForEach(func(k, v glua.LValue) {
		event := k.String()
		switch hv := v.(type) {
		case *glua.LFunction:
			hooks = append(hooks, HookDecl{Event: event, Fn: hv, Priority: -1})
		case *glua.LTable:
			fn, ok := hv.RawGetString("fn").(*glua.LFunction)
			if !ok {
				fields = append(fields, FieldError{Field: "hooks." + event, Reason: "fn must be a function"})
				return
			}
			priority := -1
			if p, isNum := hv.RawGetString("priority").(glua.LNumber); isNum {
				priority = int(p)
			}
			hooks = append(hooks, HookDecl{Event: event, Fn: fn, Priority: priority})
		default:
			fields = append(fields, FieldError{Field: "hooks." + event, Reason: "must be a function or {fn, priority} table"})
		}
	})

	sort.Slice(hooks, func(i, j int) bool { return hooks[i].Event < hooks[j].Event })
	return hooks, fields
}

func tblString(tbl *glua.LTable, key string) string {
	if s, ok := tbl.RawGetString(key).(glua.LString); ok {
		return string(s)
	}
	return ""
}
