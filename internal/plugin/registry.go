package plugin

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/fable/internal/hook"
	"github.com/dshills/fable/internal/plugin/lifecycle"
	"github.com/dshills/fable/internal/plugin/lua"
	"github.com/dshills/fable/internal/plugin/resolve"
	"github.com/dshills/fable/internal/store"
)

// Event announces one plugin's lifecycle transition to registry
// subscribers.
type Event struct {
	Plugin string
	From   lifecycle.State
	To     lifecycle.State
}

// BatchEntry is one plugin's outcome within a batch operation. An
// entry with an empty Plugin reports a failure of the batch itself,
// such as dependency resolution.
type BatchEntry struct {
	Plugin string
	Err    error
}

// BatchResult collects per-plugin outcomes. Batch operations never
// return a Go error; one plugin failing must not hide the others.
type BatchResult struct {
	Entries []BatchEntry
}

// Failures returns the entries that carry an error.
func (r BatchResult) Failures() []BatchEntry {
	var out []BatchEntry
	for _, e := range r.Entries {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// OK reports whether every entry succeeded.
func (r BatchResult) OK() bool { return len(r.Failures()) == 0 }

// StorageProvider returns the persistence namespace for a plugin.
type StorageProvider func(name string) store.Store

// Registry owns every plugin: discovery, loading, lifecycle, and
// teardown. Mutating operations are meant to run from the host's main
// goroutine; read accessors are safe from anywhere.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
	order   []string
	subs    []func(Event)
	closed  bool

	bus     *hook.Manager
	state   store.Store
	storage StorageProvider
	logger  *slog.Logger
	budget  time.Duration
	trusted map[string]bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithBus sets the hook bus the registry dispatches on.
func WithBus(bus *hook.Manager) RegistryOption {
	return func(r *Registry) { r.bus = bus }
}

// WithStateStore sets the shared story-state store.
func WithStateStore(s store.Store) RegistryOption {
	return func(r *Registry) { r.state = s }
}

// WithStorageProvider sets where plugins persist their data.
func WithStorageProvider(p StorageProvider) RegistryOption {
	return func(r *Registry) { r.storage = p }
}

// WithBudget sets the sandbox execution budget for plugin calls.
func WithBudget(d time.Duration) RegistryOption {
	return func(r *Registry) { r.budget = d }
}

// WithTrustedPlugins names plugins that run without the sandbox.
func WithTrustedPlugins(names []string) RegistryOption {
	return func(r *Registry) {
		for _, n := range names {
			r.trusted[n] = true
		}
	}
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		plugins: make(map[string]*Plugin),
		bus:     hook.NewManager(),
		state:   store.NewMemory(),
		logger:  slog.Default(),
		budget:  lua.DefaultBudget,
		trusted: make(map[string]bool),
	}
	r.storage = func(string) store.Store { return store.NewMemory() }
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bus returns the hook bus so the story engine can emit events.
func (r *Registry) Bus() *hook.Manager { return r.bus }

// State returns the shared story-state store.
func (r *Registry) State() store.Store { return r.state }

// Subscribe registers a callback for lifecycle transitions, including
// forced moves to the error state.
func (r *Registry) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *Registry) notify(ev Event) {
	r.mu.RLock()
	subs := make([]func(Event), len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Discover scans the directories and registers every candidate in the
// discovered state. Already-registered names are skipped. It returns
// the number of new registrations.
func (r *Registry) Discover(dirs []string) (int, error) {
	candidates, err := Discover(dirs)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, c := range candidates {
		if err := r.Register(c); err == nil {
			added++
		}
	}
	return added, nil
}

// Register adds a candidate in the discovered state.
func (r *Registry) Register(c Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.plugins[c.Name]; ok {
		return ErrDuplicate
	}
	r.plugins[c.Name] = &Plugin{
		candidate: c,
		machine:   lifecycle.NewMachine(),
	}
	r.logger.Debug("plugin discovered", "plugin", c.Name, "dir", c.Dir)
	return nil
}

// Load runs a discovered plugin's script and validates its
// declaration. Failures move the plugin to the error state.
func (r *Registry) Load(name string) error {
	p, err := r.get(name)
	if err != nil {
		return err
	}
	if cur := p.machine.Current(); cur != lifecycle.StateDiscovered {
		return &lifecycle.InvalidTransitionError{From: cur, To: lifecycle.StateLoaded}
	}

	opts := []lua.Option{
		lua.WithBudget(r.budget),
		lua.WithLog(func(msg string) {
			r.logger.Info(msg, "plugin", name, "source", "print")
		}),
	}
	if r.trusted[name] {
		opts = append(opts, lua.WithTrusted())
	}

	env := lua.NewEnv(name, opts...)
	env.Seal()

	if err := env.LoadFile(p.candidate.Script); err != nil {
		env.Close()
		r.fail(p, lifecycle.StateLoaded, err.Error())
		return err
	}

	decl, err := ParseDeclaration(env, name)
	if err != nil {
		env.Close()
		r.fail(p, lifecycle.StateLoaded, err.Error())
		return err
	}

	p.env = env
	p.decl = decl
	p.machine.TransitionTo(lifecycle.StateLoaded) //nolint:errcheck
	r.notify(Event{Plugin: name, From: lifecycle.StateDiscovered, To: lifecycle.StateLoaded})
	r.logger.Info("plugin loaded", "plugin", name, "version", decl.Version, "trusted", env.Trusted())
	return nil
}

// LoadAll loads every discovered plugin.
func (r *Registry) LoadAll() BatchResult {
	var result BatchResult
	for _, name := range r.namesInState(lifecycle.StateDiscovered) {
		result.Entries = append(result.Entries, BatchEntry{Plugin: name, Err: r.Load(name)})
	}
	return result
}

// TransitionPlugin moves a plugin along one lifecycle edge, firing the
// edge's hooks first. A hook failure forces the plugin into the error
// state and is reported as a HookFailureError.
func (r *Registry) TransitionPlugin(name string, to lifecycle.State) error {
	p, err := r.get(name)
	if err != nil {
		return err
	}
	return r.transition(p, to)
}

// Initialize advances a loaded plugin, firing on_load and on_init.
func (r *Registry) Initialize(name string) error {
	return r.TransitionPlugin(name, lifecycle.StateInitialized)
}

// Enable activates a plugin. Only the single edge is taken; enabling a
// plugin that was never initialized is invalid.
func (r *Registry) Enable(name string) error {
	return r.TransitionPlugin(name, lifecycle.StateEnabled)
}

// Disable deactivates a plugin. Refused while other enabled plugins
// depend on it.
func (r *Registry) Disable(name string) error {
	p, err := r.get(name)
	if err != nil {
		return err
	}
	if deps := r.enabledDependents(name); len(deps) > 0 {
		return &DependentsError{Plugin: name, Dependents: deps}
	}
	return r.transition(p, lifecycle.StateDisabled)
}

// Destroy tears a plugin down, disabling it first when necessary. The
// registry entry is removed once the plugin reaches destroyed.
func (r *Registry) Destroy(name string) error {
	p, err := r.get(name)
	if err != nil {
		return err
	}
	if deps := r.enabledDependents(name); len(deps) > 0 {
		return &DependentsError{Plugin: name, Dependents: deps}
	}
	return r.destroyPlugin(p)
}

// InitializeAll resolves dependencies and initializes every loaded
// plugin in dependency order. A resolution failure aborts the batch
// with a single unattributed entry.
func (r *Registry) InitializeAll() BatchResult {
	order, err := r.resolveOrder()
	if err != nil {
		return BatchResult{Entries: []BatchEntry{{Err: err}}}
	}

	var result BatchResult
	for _, name := range order {
		p, getErr := r.get(name)
		if getErr != nil || p.machine.Current() != lifecycle.StateLoaded {
			continue
		}
		result.Entries = append(result.Entries, BatchEntry{Plugin: name, Err: r.transition(p, lifecycle.StateInitialized)})
	}
	return result
}

// EnableAll enables every initialized plugin in dependency order.
func (r *Registry) EnableAll() BatchResult {
	order, err := r.resolveOrder()
	if err != nil {
		return BatchResult{Entries: []BatchEntry{{Err: err}}}
	}

	var result BatchResult
	for _, name := range order {
		p, getErr := r.get(name)
		if getErr != nil || p.machine.Current() != lifecycle.StateInitialized {
			continue
		}
		result.Entries = append(result.Entries, BatchEntry{Plugin: name, Err: r.transition(p, lifecycle.StateEnabled)})
	}
	return result
}

// DisableAll disables every enabled plugin in exact reverse dependency
// order.
func (r *Registry) DisableAll() BatchResult {
	var result BatchResult
	for _, name := range resolve.ReverseOrder(r.lastOrder()) {
		p, err := r.get(name)
		if err != nil || p.machine.Current() != lifecycle.StateEnabled {
			continue
		}
		result.Entries = append(result.Entries, BatchEntry{Plugin: name, Err: r.transition(p, lifecycle.StateDisabled)})
	}
	return result
}

// DestroyAll tears every plugin down in reverse dependency order,
// clears the registry, and closes it.
func (r *Registry) DestroyAll() BatchResult {
	names := resolve.ReverseOrder(r.lastOrder())
	for _, name := range r.allNames() {
		if !contains(names, name) {
			names = append(names, name)
		}
	}

	var result BatchResult
	for _, name := range names {
		p, err := r.get(name)
		if err != nil {
			continue
		}
		result.Entries = append(result.Entries, BatchEntry{Plugin: name, Err: r.destroyPlugin(p)})
	}

	r.mu.Lock()
	r.order = nil
	r.closed = true
	r.mu.Unlock()
	return result
}

// destroyPlugin routes a plugin to destroyed from whatever state it is
// in. Enabled plugins are disabled first so on_disable fires; a failing
// on_disable still completes the teardown through the error edge, but
// the failure is reported. Plugins that never reached enabled skip
// straight to teardown through the error edge, recording why.
func (r *Registry) destroyPlugin(p *Plugin) error {
	switch p.machine.Current() {
	case lifecycle.StateEnabled:
		if err := r.transition(p, lifecycle.StateDisabled); err != nil {
			if p.machine.Current() != lifecycle.StateError {
				return err
			}
			if derr := r.transition(p, lifecycle.StateDestroyed); derr != nil {
				return derr
			}
			return err
		}
		return r.transition(p, lifecycle.StateDestroyed)
	case lifecycle.StateDisabled, lifecycle.StateError:
		return r.transition(p, lifecycle.StateDestroyed)
	case lifecycle.StateDestroyed:
		return nil
	default:
		// discovered, loaded, initialized
		p.machine.Fail("unloaded before activation") //nolint:errcheck
		return r.transition(p, lifecycle.StateDestroyed)
	}
}

// GetPlugin returns a plugin by name.
func (r *Registry) GetPlugin(name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Plugins returns every registered plugin, sorted by name.
func (r *Registry) Plugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// PluginNames returns every registered name, sorted.
func (r *Registry) PluginNames() []string {
	return r.allNames()
}

// PluginState reports a plugin's current lifecycle state.
func (r *Registry) PluginState(name string) (lifecycle.State, bool) {
	p, ok := r.GetPlugin(name)
	if !ok {
		return "", false
	}
	return p.machine.Current(), true
}

// PluginsByState returns the names currently in the given state,
// sorted.
func (r *Registry) PluginsByState(s lifecycle.State) []string {
	return r.namesInState(s)
}

// LoadOrder returns the most recently computed dependency order.
func (r *Registry) LoadOrder() []string {
	return r.lastOrder()
}

// APIFunc invokes one member of another plugin's public API. Arguments
// and the result cross the interpreter boundary as plain Go values.
type APIFunc func(args ...any) (any, error)

// PluginAPI returns the named plugin's public API, available only while
// the plugin is enabled.
func (r *Registry) PluginAPI(name string) (map[string]APIFunc, bool) {
	p, ok := r.GetPlugin(name)
	if !ok || p.machine.Current() != lifecycle.StateEnabled {
		return nil, false
	}
	if p.decl == nil || len(p.decl.API) == 0 {
		return nil, false
	}

	out := make(map[string]APIFunc, len(p.decl.API))
	for member, fn := range p.decl.API {
		fn := fn
		out[member] = func(args ...any) (any, error) {
			largs := make([]glua.LValue, len(args))
			for i, a := range args {
				largs[i] = lua.ToLua(p.env.L, a)
			}
			results, err := p.env.Call(fn, largs...)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 || results[0] == glua.LNil {
				return nil, nil
			}
			return lua.ToGo(results[0]), nil
		}
	}
	return out, true
}

// transition moves a plugin along a single validated edge.
func (r *Registry) transition(p *Plugin, to lifecycle.State) error {
	name := p.Name()
	from := p.machine.Current()
	if !lifecycle.IsValidTransition(from, to) {
		return &lifecycle.InvalidTransitionError{From: from, To: to}
	}

	hooks := lifecycle.TransitionHooks(from, to)
	if len(hooks) > 0 {
		r.ensureContext(p)
	}
	for _, h := range hooks {
		if err := p.callLifecycleHook(h); err != nil {
			r.fail(p, to, err.Error())
			return &HookFailureError{Plugin: name, Hook: h, Err: err}
		}
	}

	p.machine.TransitionTo(to) //nolint:errcheck

	switch to {
	case lifecycle.StateEnabled:
		r.activateBusHooks(p)
	case lifecycle.StateDisabled:
		r.deactivateBusHooks(p)
	case lifecycle.StateDestroyed:
		r.teardown(p)
		r.remove(name)
	}

	r.notify(Event{Plugin: name, From: from, To: to})
	r.logger.Debug("plugin transition", "plugin", name, "from", string(from), "to", string(to))
	return nil
}

// fail forces a plugin into the error state and announces it.
func (r *Registry) fail(p *Plugin, attempted lifecycle.State, reason string) {
	from := p.machine.Current()
	if p.machine.Fail(reason) != nil {
		return
	}
	r.notify(Event{Plugin: p.Name(), From: from, To: lifecycle.StateError})
	r.logger.Error("plugin failed", "plugin", p.Name(), "attempted", string(attempted), "reason", reason)
}

// ensureContext creates the plugin's context the first time a
// lifecycle hook is about to fire.
func (r *Registry) ensureContext(p *Plugin) {
	if p.ctx != nil || p.decl == nil {
		return
	}
	p.ctx = newContext(p.Name(), p.decl.Capabilities, r.state, r.storage(p.Name()), r.bus, r.logger)
	installModule(p.env, p.ctx, r)
}

// activateBusHooks subscribes the declaration's event hooks while the
// plugin is enabled.
func (r *Registry) activateBusHooks(p *Plugin) {
	if p.ctx == nil || len(p.busIDs) > 0 {
		return
	}
	for _, h := range p.decl.Hooks {
		if lifecycleHooks[h.Event] {
			continue
		}
		id, err := p.ctx.RegisterHook(h.Event, p.busHandler(h), h.Priority)
		if err == nil {
			p.busIDs = append(p.busIDs, id)
		}
	}
}

// deactivateBusHooks drops the declaration's event hooks when the
// plugin is disabled; explicit fable.hooks registrations stay until
// destruction.
func (r *Registry) deactivateBusHooks(p *Plugin) {
	for _, id := range p.busIDs {
		p.ctx.UnregisterHook(id)
	}
	p.busIDs = nil
}

// teardown releases the plugin's context and interpreter.
func (r *Registry) teardown(p *Plugin) {
	if p.ctx != nil {
		p.ctx.Cleanup()
	}
	if p.env != nil {
		p.env.Close()
	}
	p.busIDs = nil
}

// remove drops a destroyed plugin's registry entry and its slot in the
// load order.
func (r *Registry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// resolveOrder rebuilds the dependency order across every plugin that
// has a declaration and is not dead.
func (r *Registry) resolveOrder() ([]string, error) {
	set := make(resolve.Set)

	r.mu.RLock()
	for name, p := range r.plugins {
		if p.decl == nil {
			continue
		}
		switch p.machine.Current() {
		case lifecycle.StateError, lifecycle.StateDestroyed:
			continue
		}
		v, err := resolve.ParseVersion(p.decl.Version)
		if err != nil {
			r.mu.RUnlock()
			return nil, err
		}
		set[name] = resolve.Candidate{Name: name, Version: v, Dependencies: p.decl.Dependencies}
	}
	r.mu.RUnlock()

	order, err := resolve.Resolve(set)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.order = order
	r.mu.Unlock()
	return order, nil
}

// enabledDependents returns the enabled plugins that declare a
// dependency on name.
func (r *Registry) enabledDependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for depName, p := range r.plugins {
		if p.decl == nil || p.machine.Current() != lifecycle.StateEnabled {
			continue
		}
		if _, ok := p.decl.Dependencies[name]; ok {
			out = append(out, depName)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) get(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *Registry) allNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) namesInState(s lifecycle.State) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, p := range r.plugins {
		if p.machine.Current() == s {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lastOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
