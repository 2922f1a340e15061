// Package agent is the orchestrator: it owns the registration loop, the
// primary collect-and-deliver cycle, the optional live stream loop, and
// cooperative shutdown of all of them.
//
// Run drives the whole lifecycle on one context. The two loops share the
// delivery client; the primary cycle is the only writer of configuration
// state, and the live loop reads it through the agent's mutex. Shutdown
// waits a bounded time for the loops to drain before reporting stopped.
package agent
