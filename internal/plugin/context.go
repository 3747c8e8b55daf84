package plugin

import (
	"log/slog"

	"github.com/dshills/fable/internal/hook"
	"github.com/dshills/fable/internal/store"
)

// Context is the host surface a plugin sees. Every method that touches
// shared state checks the plugin's declared capabilities first; a
// plugin that never declared state:read cannot read a variable no
// matter what its script does.
//
// A Context is created lazily, the first time one of the plugin's
// lifecycle hooks fires, and torn down when the plugin is destroyed.
type Context struct {
	plugin  string
	caps    capabilitySet
	state   store.Store
	storage store.Store
	bus     *hook.Manager
	scope   *hook.Scope
	logger  *slog.Logger
}

func newContext(name string, caps []Capability, state, storage store.Store, bus *hook.Manager, logger *slog.Logger) *Context {
	return &Context{
		plugin:  name,
		caps:    newCapabilitySet(caps),
		state:   state,
		storage: storage,
		bus:     bus,
		scope:   bus.NewScope(name),
		logger:  logger.With("plugin", name),
	}
}

// Plugin returns the owning plugin's name.
func (c *Context) Plugin() string { return c.plugin }

// Capabilities returns the granted capabilities, sorted.
func (c *Context) Capabilities() []Capability { return c.caps.list() }

// Has reports whether the capability was granted.
func (c *Context) Has(cap Capability) bool { return c.caps.has(cap) }

func (c *Context) require(cap Capability) error {
	if !c.caps.has(cap) {
		return &CapabilityError{Plugin: c.plugin, Capability: cap}
	}
	return nil
}

// StateGet reads a story variable. Requires state:read.
func (c *Context) StateGet(key string) (any, error) {
	if err := c.require(CapStateRead); err != nil {
		return nil, err
	}
	v, _ := c.state.Get(key)
	return v, nil
}

// StateHas reports whether a story variable exists. Requires state:read.
func (c *Context) StateHas(key string) (bool, error) {
	if err := c.require(CapStateRead); err != nil {
		return false, err
	}
	return c.state.Has(key), nil
}

// StateSet writes a story variable and announces the change on the
// bus. Requires state:write; notably it does not require state:read, so
// a write-only plugin can set variables it cannot inspect.
func (c *Context) StateSet(key string, value any) error {
	if err := c.require(CapStateWrite); err != nil {
		return err
	}
	c.state.Set(key, value)
	c.bus.Trigger(hook.EventStateChange, map[string]any{
		"key":    key,
		"value":  value,
		"source": c.plugin,
	})
	return nil
}

// StateDelete removes a story variable. Requires state:write.
func (c *Context) StateDelete(key string) error {
	if err := c.require(CapStateWrite); err != nil {
		return err
	}
	c.state.Delete(key)
	return nil
}

// StateAll returns every story variable. Requires state:read.
func (c *Context) StateAll() (map[string]any, error) {
	if err := c.require(CapStateRead); err != nil {
		return nil, err
	}
	return c.state.GetAll(), nil
}

// Watch invokes fn whenever the named story variable changes. Requires
// state:watch. The watch is removed with the context.
func (c *Context) Watch(key string, fn func(value any)) (hook.ID, error) {
	if err := c.require(CapStateWatch); err != nil {
		return "", err
	}
	return c.scope.Register(hook.EventStateChange, func(event string, payload any) (any, error) {
		change, ok := payload.(map[string]any)
		if !ok || change["key"] != key {
			return nil, nil
		}
		fn(change["value"])
		return nil, nil
	})
}

// StorageGet reads from the plugin's persistence namespace. Storage is
// private to the plugin and needs no capability.
func (c *Context) StorageGet(key string) any {
	v, _ := c.storage.Get(key)
	return v
}

// StorageSet writes to the plugin's persistence namespace.
func (c *Context) StorageSet(key string, value any) {
	c.storage.Set(key, value)
}

// StorageDelete removes a persisted key.
func (c *Context) StorageDelete(key string) {
	c.storage.Delete(key)
}

// StorageAll returns the plugin's whole namespace.
func (c *Context) StorageAll() map[string]any {
	return c.storage.GetAll()
}

// StorageClear empties the plugin's namespace and nothing else.
func (c *Context) StorageClear() {
	for key := range c.storage.GetAll() {
		c.storage.Delete(key)
	}
}

// Log returns the plugin's logger, tagged with the plugin name.
func (c *Context) Log() *slog.Logger { return c.logger }

// RegisterHook subscribes a handler on the plugin's behalf. Pass a
// negative priority for the default.
func (c *Context) RegisterHook(event string, fn hook.Handler, priority int) (hook.ID, error) {
	opts := []hook.Option{}
	if priority >= 0 {
		opts = append(opts, hook.WithPriority(priority))
	}
	return c.scope.Register(event, fn, opts...)
}

// UnregisterHook removes one of the plugin's hook registrations.
func (c *Context) UnregisterHook(id hook.ID) bool {
	return c.scope.Unregister(id)
}

// Cleanup tears down everything the context registered. Called exactly
// once, on destruction.
func (c *Context) Cleanup() {
	c.scope.Close()
}
