// Package hook is the event bus connecting the story engine to plugins.
//
// Events dispatch in one of two modes. Observer events fan a payload
// out to every handler and ignore what handlers return. Transform
// events thread a value through the handlers so each one sees the
// previous handler's output; a handler that fails or returns nil leaves
// the value untouched rather than breaking the chain.
//
// Handlers run in ascending priority order (0 first, 100 last, default
// 50), with registration order breaking ties. One handler failing or
// panicking never stops the others; outcomes are reported per handler.
package hook
