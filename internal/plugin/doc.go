// Package plugin hosts story plugins: Lua scripts that observe and
// extend a running narrative.
//
// The Registry owns the full lifecycle. Plugins are discovered on disk,
// loaded inside a sandboxed interpreter, ordered by their declared
// dependencies, and advanced through a strict state machine
// (discovered, loaded, initialized, enabled, disabled, destroyed, with
// error as the trapdoor). Each plugin publishes a single `plugin`
// table declaring its name, version, dependencies, capabilities, and
// hooks; everything the plugin may touch at runtime is mediated by its
// Context, which enforces the declared capabilities.
package plugin
