package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dshills/fable/internal/hook"
	"github.com/dshills/fable/internal/plugin/lifecycle"
	"github.com/dshills/fable/internal/plugin/resolve"
)

// newTestRegistry discovers the given plugins and returns the registry.
func newTestRegistry(t *testing.T, scripts map[string]string, opts ...RegistryOption) *Registry {
	t.Helper()

	root := t.TempDir()
	for name, script := range scripts {
		writePluginDir(t, root, name, script)
	}

	r := NewRegistry(opts...)
	n, err := r.Discover([]string{root})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if n != len(scripts) {
		t.Fatalf("Discover registered %d plugins, want %d", n, len(scripts))
	}
	return r
}

func decl(name, version, extra string) string {
	return `
plugin = {
	name = "` + name + `",
	version = "` + version + `",
	` + extra + `
}
`
}

func TestLoadParsesDeclaration(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", ""),
	})

	if err := r.Load("alpha"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, ok := r.GetPlugin("alpha")
	if !ok {
		t.Fatal("GetPlugin(alpha) not found")
	}
	if p.State() != lifecycle.StateLoaded {
		t.Errorf("state = %s, want loaded", p.State())
	}
	if p.Version() != "1.0.0" {
		t.Errorf("version = %q", p.Version())
	}
	if p.Context() != nil {
		t.Error("context should stay nil until a lifecycle hook fires")
	}
}

func TestLoadInvalidDeclarationForcesErrorState(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": `plugin = { name = "alpha" }`,
	})

	err := r.Load("alpha")
	if !errors.Is(err, ErrInvalidDeclaration) {
		t.Fatalf("Load error = %v, want ErrInvalidDeclaration", err)
	}

	state, _ := r.PluginState("alpha")
	if state != lifecycle.StateError {
		t.Errorf("state = %s, want error", state)
	}
	p, _ := r.GetPlugin("alpha")
	if p.ErrorMessage() == "" {
		t.Error("ErrorMessage is empty after a load failure")
	}
}

func TestInitializeAllOrdersByDependencies(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", ""),
		"beta":  decl("beta", "1.0.0", `dependencies = { alpha = "^1.0.0" },`),
		"gamma": decl("gamma", "1.0.0", `dependencies = { beta = ">=1.0.0" },`),
	})

	if res := r.LoadAll(); !res.OK() {
		t.Fatalf("LoadAll failures: %v", res.Failures())
	}

	var initialized []string
	r.Subscribe(func(ev Event) {
		if ev.To == lifecycle.StateInitialized {
			initialized = append(initialized, ev.Plugin)
		}
	})

	if res := r.InitializeAll(); !res.OK() {
		t.Fatalf("InitializeAll failures: %v", res.Failures())
	}

	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(initialized, want) {
		t.Errorf("initialization order = %v, want %v", initialized, want)
	}
	if !reflect.DeepEqual(r.LoadOrder(), want) {
		t.Errorf("LoadOrder = %v, want %v", r.LoadOrder(), want)
	}
}

func TestInitializeAllMissingDependency(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", ""),
		"gamma": decl("gamma", "1.0.0", `dependencies = { delta = "*" },`),
	})
	r.LoadAll()

	res := r.InitializeAll()
	if res.OK() {
		t.Fatal("InitializeAll should fail on a missing dependency")
	}
	if len(res.Entries) != 1 || res.Entries[0].Plugin != "" {
		t.Fatalf("Entries = %v, want one unattributed failure", res.Entries)
	}
	if !errors.Is(res.Entries[0].Err, resolve.ErrMissingDependency) {
		t.Errorf("error = %v, want ErrMissingDependency", res.Entries[0].Err)
	}

	// Nobody moved.
	if got := r.PluginsByState(lifecycle.StateLoaded); len(got) != 2 {
		t.Errorf("loaded plugins = %v, want both", got)
	}
}

func TestEnableRequiresInitialize(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", ""),
	})
	if err := r.Load("alpha"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := r.Enable("alpha"); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("Enable from loaded error = %v, want ErrInvalidTransition", err)
	}

	if err := r.Initialize("alpha"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := r.Enable("alpha"); err != nil {
		t.Fatalf("Enable after Initialize: %v", err)
	}

	state, _ := r.PluginState("alpha")
	if state != lifecycle.StateEnabled {
		t.Errorf("state = %s, want enabled", state)
	}
}

func TestLifecycleHooksFire(t *testing.T) {
	script := decl("alpha", "1.0.0", `
	capabilities = { "state:write" },
	hooks = {
		on_load = function() fable.state.set("trace", "loaded") end,
		on_enable = function() fable.state.set("trace", "enabled") end,
		on_disable = function() fable.state.set("trace", "disabled") end,
	},`)
	r := newTestRegistry(t, map[string]string{"alpha": script})
	r.LoadAll()

	if err := r.Initialize("alpha"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if v, _ := r.State().Get("trace"); v != "loaded" {
		t.Errorf("after init trace = %v, want loaded", v)
	}

	if err := r.Enable("alpha"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if v, _ := r.State().Get("trace"); v != "enabled" {
		t.Errorf("after enable trace = %v, want enabled", v)
	}

	if err := r.Disable("alpha"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if v, _ := r.State().Get("trace"); v != "disabled" {
		t.Errorf("after disable trace = %v, want disabled", v)
	}
}

func TestHookFailureForcesErrorState(t *testing.T) {
	script := decl("alpha", "1.0.0", `
	hooks = {
		on_init = function() error("refuses to start") end,
	},`)
	r := newTestRegistry(t, map[string]string{"alpha": script})
	r.LoadAll()

	err := r.Initialize("alpha")
	if !errors.Is(err, ErrHookFailure) {
		t.Fatalf("Initialize error = %v, want ErrHookFailure", err)
	}

	var hf *HookFailureError
	if !errors.As(err, &hf) {
		t.Fatalf("error %v is not a HookFailureError", err)
	}
	if hf.Plugin != "alpha" || hf.Hook != lifecycle.HookInit {
		t.Errorf("HookFailureError = %+v", hf)
	}

	state, _ := r.PluginState("alpha")
	if state != lifecycle.StateError {
		t.Fatalf("state = %s, want error", state)
	}

	// The only way out is destruction, which removes the entry.
	if err := r.Destroy("alpha"); err != nil {
		t.Fatalf("Destroy from error: %v", err)
	}
	if _, ok := r.GetPlugin("alpha"); ok {
		t.Error("registry still holds alpha after Destroy")
	}
}

func TestCapabilityGating(t *testing.T) {
	script := decl("writer", "1.0.0", `
	capabilities = { "state:write" },
	hooks = { on_load = function() end },`)
	r := newTestRegistry(t, map[string]string{"writer": script})
	r.LoadAll()
	if err := r.Initialize("writer"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ctx := mustContext(t, r, "writer")

	// state:write grants set and delete but not get.
	if err := ctx.StateSet("score", 10); err != nil {
		t.Fatalf("StateSet: %v", err)
	}
	if _, err := ctx.StateGet("score"); !errors.Is(err, ErrCapability) {
		t.Fatalf("StateGet error = %v, want ErrCapability", err)
	}

	var ce *CapabilityError
	_, err := ctx.StateAll()
	if !errors.As(err, &ce) {
		t.Fatalf("StateAll error = %v, want CapabilityError", err)
	}
	if ce.Capability != CapStateRead {
		t.Errorf("CapabilityError.Capability = %s", ce.Capability)
	}
	if err := ctx.StateDelete("score"); err != nil {
		t.Fatalf("StateDelete: %v", err)
	}

	// Storage is the plugin's own namespace and is never gated.
	ctx.StorageSet("notes", "kept")
	if v := ctx.StorageGet("notes"); v != "kept" {
		t.Errorf("StorageGet = %v, want kept", v)
	}
}

func TestStoragePerPlugin(t *testing.T) {
	hooks := `hooks = { on_load = function() end },`
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", hooks),
		"beta":  decl("beta", "1.0.0", hooks),
	})
	r.LoadAll()
	r.InitializeAll()

	a := mustContext(t, r, "alpha")
	b := mustContext(t, r, "beta")

	a.StorageSet("secret", "mine")
	if v := b.StorageGet("secret"); v != nil {
		t.Errorf("beta sees alpha's data: %v", v)
	}
	if all := a.StorageAll(); all["secret"] != "mine" {
		t.Errorf("StorageAll = %v", all)
	}

	// Clear empties only the caller's namespace.
	b.StorageSet("secret", "also mine")
	a.StorageClear()
	if v := a.StorageGet("secret"); v != nil {
		t.Errorf("alpha storage survived Clear: %v", v)
	}
	if v := b.StorageGet("secret"); v != "also mine" {
		t.Errorf("Clear leaked into beta's namespace: %v", v)
	}
}

func TestDeclaredTransformHook(t *testing.T) {
	script := decl("decorator", "1.0.0", `
	hooks = {
		on_passage_render = function(text)
			return text .. " [annotated]"
		end,
	},`)
	r := newTestRegistry(t, map[string]string{"decorator": script})
	r.LoadAll()
	r.InitializeAll()
	r.EnableAll()

	out, _ := r.Bus().Transform(hook.EventPassageRender, "The hall is quiet.")
	if out != "The hall is quiet. [annotated]" {
		t.Errorf("Transform = %v", out)
	}

	// Disabling the plugin detaches its declared hooks.
	if err := r.Disable("decorator"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	out, _ = r.Bus().Transform(hook.EventPassageRender, "The hall is quiet.")
	if out != "The hall is quiet." {
		t.Errorf("Transform after disable = %v", out)
	}

	// Re-enabling attaches them again.
	if err := r.Enable("decorator"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	out, _ = r.Bus().Transform(hook.EventPassageRender, "x")
	if out != "x [annotated]" {
		t.Errorf("Transform after re-enable = %v", out)
	}
}

func TestDisableBlockedByDependents(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", ""),
		"beta":  decl("beta", "1.0.0", `dependencies = { alpha = "*" },`),
	})
	r.LoadAll()
	r.InitializeAll()
	r.EnableAll()

	err := r.Disable("alpha")
	if !errors.Is(err, ErrHasDependents) {
		t.Fatalf("Disable(alpha) error = %v, want ErrHasDependents", err)
	}
	var de *DependentsError
	if !errors.As(err, &de) || len(de.Dependents) != 1 || de.Dependents[0] != "beta" {
		t.Fatalf("DependentsError = %+v", err)
	}

	if err := r.Disable("beta"); err != nil {
		t.Fatalf("Disable(beta): %v", err)
	}
	if err := r.Disable("alpha"); err != nil {
		t.Fatalf("Disable(alpha) after beta: %v", err)
	}
}

func TestVersionMismatchBlocksBatch(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "2.0.0", ""),
		"beta":  decl("beta", "1.0.0", `dependencies = { alpha = "^1.0.0" },`),
	})
	r.LoadAll()

	res := r.InitializeAll()
	if res.OK() {
		t.Fatal("InitializeAll should fail on a version mismatch")
	}
	if !errors.Is(res.Entries[0].Err, resolve.ErrVersionMismatch) {
		t.Errorf("error = %v, want ErrVersionMismatch", res.Entries[0].Err)
	}
}

func TestDestroyAllReverseOrder(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", ""),
		"beta":  decl("beta", "1.0.0", `dependencies = { alpha = "*" },`),
	})
	r.LoadAll()
	r.InitializeAll()
	r.EnableAll()

	var destroyed []string
	r.Subscribe(func(ev Event) {
		if ev.To == lifecycle.StateDestroyed {
			destroyed = append(destroyed, ev.Plugin)
		}
	})

	if res := r.DestroyAll(); !res.OK() {
		t.Fatalf("DestroyAll failures: %v", res.Failures())
	}

	want := []string{"beta", "alpha"}
	if !reflect.DeepEqual(destroyed, want) {
		t.Errorf("destruction order = %v, want %v", destroyed, want)
	}

	// Destruction clears the registry.
	if _, ok := r.GetPlugin("alpha"); ok {
		t.Error("registry still holds alpha after DestroyAll")
	}
	if got := r.Plugins(); len(got) != 0 {
		t.Errorf("Plugins after DestroyAll = %v, want none", got)
	}
	if got := r.LoadOrder(); len(got) != 0 {
		t.Errorf("LoadOrder after DestroyAll = %v, want empty", got)
	}

	if err := r.Register(Candidate{Name: "late"}); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Register after DestroyAll error = %v, want ErrRegistryClosed", err)
	}
}

func TestSubscribeSeesTransitions(t *testing.T) {
	r := newTestRegistry(t, map[string]string{
		"alpha": decl("alpha", "1.0.0", ""),
	})

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })

	r.LoadAll()
	r.Initialize("alpha") //nolint:errcheck
	r.Enable("alpha")     //nolint:errcheck

	want := []Event{
		{Plugin: "alpha", From: lifecycle.StateDiscovered, To: lifecycle.StateLoaded},
		{Plugin: "alpha", From: lifecycle.StateLoaded, To: lifecycle.StateInitialized},
		{Plugin: "alpha", From: lifecycle.StateInitialized, To: lifecycle.StateEnabled},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestWatchSeesStateChanges(t *testing.T) {
	script := decl("watcher", "1.0.0", `
	capabilities = { "state:watch", "state:write" },
	hooks = { on_load = function() end },`)
	r := newTestRegistry(t, map[string]string{"watcher": script})
	r.LoadAll()
	r.InitializeAll()

	ctx := mustContext(t, r, "watcher")

	var seen []any
	if _, err := ctx.Watch("score", func(v any) { seen = append(seen, v) }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := ctx.StateSet("score", 5); err != nil {
		t.Fatalf("StateSet: %v", err)
	}
	if err := ctx.StateSet("unrelated", 1); err != nil {
		t.Fatalf("StateSet: %v", err)
	}

	if len(seen) != 1 || seen[0] != 5 {
		t.Errorf("watch saw %v, want [5]", seen)
	}
}

func TestWatchRequiresCapability(t *testing.T) {
	script := decl("deaf", "1.0.0", `hooks = { on_load = function() end },`)
	r := newTestRegistry(t, map[string]string{"deaf": script})
	r.LoadAll()
	r.InitializeAll()

	ctx := mustContext(t, r, "deaf")
	if _, err := ctx.Watch("score", func(any) {}); !errors.Is(err, ErrCapability) {
		t.Errorf("Watch error = %v, want ErrCapability", err)
	}
}

func TestTrustedPluginBypassesSandbox(t *testing.T) {
	// Creating a global would be an escape under the sandbox.
	script := `
scratch = {}
plugin = { name = "helper", version = "1.0.0" }
`
	r := newTestRegistry(t, map[string]string{"helper": script},
		WithTrustedPlugins([]string{"helper"}))

	if err := r.Load("helper"); err != nil {
		t.Fatalf("Load trusted: %v", err)
	}
	p, _ := r.GetPlugin("helper")
	if !p.Trusted() {
		t.Error("Trusted() = false")
	}
}

func TestSandboxedPluginCannotCreateGlobals(t *testing.T) {
	script := `
scratch = {}
plugin = { name = "helper", version = "1.0.0" }
`
	r := newTestRegistry(t, map[string]string{"helper": script})

	if err := r.Load("helper"); err == nil {
		t.Fatal("Load should reject a sandboxed script that creates a global")
	}
	state, _ := r.PluginState("helper")
	if state != lifecycle.StateError {
		t.Errorf("state = %s, want error", state)
	}
}

func TestScriptHookRegistration(t *testing.T) {
	script := decl("dynamic", "1.0.0", `
	hooks = {
		on_enable = function()
			fable.hooks.register("on_choice_present", function(choices)
				return choices
			end, 5)
		end,
	},`)
	r := newTestRegistry(t, map[string]string{"dynamic": script})
	r.LoadAll()
	r.InitializeAll()
	if res := r.EnableAll(); !res.OK() {
		t.Fatalf("EnableAll failures: %v", res.Failures())
	}

	if n := r.Bus().HandlerCount(hook.EventChoicePresent); n != 1 {
		t.Errorf("HandlerCount = %d, want 1", n)
	}
}

func TestSingleFilePluginLoads(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "solo.lua"), []byte(decl("solo", "1.0.0", "")), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	n, err := r.Discover([]string{root})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if n != 1 {
		t.Fatalf("Discover = %d plugins, want the single-file plugin solo", n)
	}
	if err := r.Load("solo"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state, _ := r.PluginState("solo"); state != lifecycle.StateLoaded {
		t.Errorf("state = %s, want loaded", state)
	}
}

func TestTopLevelLifecycleCallback(t *testing.T) {
	script := decl("toplevel", "1.0.0", `
	capabilities = { "state:write" },
	on_load = function() fable.state.set("trace", "loaded") end,
	on_enable = function() fable.state.set("trace", "enabled") end,`)
	r := newTestRegistry(t, map[string]string{"toplevel": script})
	r.LoadAll()

	if err := r.Initialize("toplevel"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if v, _ := r.State().Get("trace"); v != "loaded" {
		t.Errorf("after init trace = %v, want loaded", v)
	}
	if err := r.Enable("toplevel"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if v, _ := r.State().Get("trace"); v != "enabled" {
		t.Errorf("after enable trace = %v, want enabled", v)
	}
}

func TestDestroyReportsDisableHookFailure(t *testing.T) {
	script := decl("grumpy", "1.0.0", `
	hooks = {
		on_disable = function() error("refuses to stop") end,
	},`)
	r := newTestRegistry(t, map[string]string{"grumpy": script})
	r.LoadAll()
	r.InitializeAll()
	if res := r.EnableAll(); !res.OK() {
		t.Fatalf("EnableAll failures: %v", res.Failures())
	}

	// The failure is reported, but the teardown still completes.
	err := r.Destroy("grumpy")
	if !errors.Is(err, ErrHookFailure) {
		t.Fatalf("Destroy error = %v, want ErrHookFailure", err)
	}
	if _, ok := r.GetPlugin("grumpy"); ok {
		t.Error("registry still holds grumpy after Destroy")
	}
}

func TestDestroyAllReportsDisableHookFailure(t *testing.T) {
	script := decl("grumpy", "1.0.0", `
	hooks = {
		on_disable = function() error("refuses to stop") end,
	},`)
	r := newTestRegistry(t, map[string]string{"grumpy": script})
	r.LoadAll()
	r.InitializeAll()
	r.EnableAll()

	res := r.DestroyAll()
	failures := res.Failures()
	if len(failures) != 1 || failures[0].Plugin != "grumpy" {
		t.Fatalf("Failures = %v, want the on_disable failure attributed to grumpy", failures)
	}
	if !errors.Is(failures[0].Err, ErrHookFailure) {
		t.Errorf("failure = %v, want ErrHookFailure", failures[0].Err)
	}
	if got := r.Plugins(); len(got) != 0 {
		t.Errorf("Plugins after DestroyAll = %v, want none", got)
	}
}

func TestPluginPublicAPI(t *testing.T) {
	provider := decl("provider", "1.0.0", `
	api = {
		greet = function(who) return "hello " .. who end,
	},`)
	consumer := decl("consumer", "1.0.0", `
	capabilities = { "state:write" },
	dependencies = { provider = "*" },
	hooks = {
		on_enable = function()
			local api = fable.plugins.get("provider")
			fable.state.set("greeting", api.greet("world"))
		end,
	},`)
	r := newTestRegistry(t, map[string]string{
		"provider": provider,
		"consumer": consumer,
	})
	r.LoadAll()
	r.InitializeAll()
	if res := r.EnableAll(); !res.OK() {
		t.Fatalf("EnableAll failures: %v", res.Failures())
	}

	if v, _ := r.State().Get("greeting"); v != "hello world" {
		t.Errorf("greeting = %v, want hello world", v)
	}

	// The host side sees the same surface.
	api, ok := r.PluginAPI("provider")
	if !ok {
		t.Fatal("PluginAPI(provider) not available while enabled")
	}
	out, err := api["greet"]("engine")
	if err != nil || out != "hello engine" {
		t.Errorf("greet = %v, %v", out, err)
	}

	// The API disappears with the enabled state.
	if err := r.Disable("consumer"); err != nil {
		t.Fatalf("Disable(consumer): %v", err)
	}
	if err := r.Disable("provider"); err != nil {
		t.Fatalf("Disable(provider): %v", err)
	}
	if _, ok := r.PluginAPI("provider"); ok {
		t.Error("PluginAPI available after disable")
	}
}

func TestAPIMemberMustBeCallable(t *testing.T) {
	script := decl("broken", "1.0.0", `api = { greet = "not a function" },`)
	r := newTestRegistry(t, map[string]string{"broken": script})

	err := r.Load("broken")
	if !errors.Is(err, ErrInvalidDeclaration) {
		t.Fatalf("Load error = %v, want ErrInvalidDeclaration", err)
	}
}

func TestTrustedFieldIsReserved(t *testing.T) {
	script := decl("sneak", "1.0.0", `_trusted = true,`)
	r := newTestRegistry(t, map[string]string{"sneak": script})

	err := r.Load("sneak")
	if !errors.Is(err, ErrInvalidDeclaration) {
		t.Fatalf("Load error = %v, want ErrInvalidDeclaration", err)
	}
}

func TestPluginsListShowsOnlyEnabled(t *testing.T) {
	census := decl("census", "1.0.0", `
	capabilities = { "state:write" },
	dependencies = { alpha = "*" },
	hooks = {
		on_enable = function()
			fable.state.set("roster", table.concat(fable.plugins.list(), ","))
		end,
	},`)
	r := newTestRegistry(t, map[string]string{
		"alpha":  decl("alpha", "1.0.0", ""),
		"census": census,
	})
	r.LoadAll()
	r.InitializeAll()
	if res := r.EnableAll(); !res.OK() {
		t.Fatalf("EnableAll failures: %v", res.Failures())
	}

	// census's own on_enable ran before census reached enabled, so only
	// alpha was listed.
	if v, _ := r.State().Get("roster"); v != "alpha" {
		t.Errorf("roster = %v, want alpha", v)
	}
}

func mustContext(t *testing.T, r *Registry, name string) *Context {
	t.Helper()
	p, ok := r.GetPlugin(name)
	if !ok {
		t.Fatalf("plugin %s not found", name)
	}
	if p.Context() == nil {
		t.Fatalf("plugin %s has no context", name)
	}
	return p.Context()
}
