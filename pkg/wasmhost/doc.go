// Package wasmhost hosts sandboxed guest WebAssembly processes on
// github.com/tetratelabs/wazero. Each guest module is
// loaded through the asset store into a cached compiled module, then
// instantiated twice per process: once for a metadata phase and once
// for the running phase. All five host namespaces (hearth::log,
// hearth::lump, hearth::table, hearth::mailbox, hearth::metadata) are
// registered once on the shared wazero runtime, so either instance may
// import and call any of them; only the hearth::metadata functions
// check the phase, failing with a wrong-phase code outside the
// metadata phase.
//
// Preemption uses wazero's context-cancellation interruption
// (wazero.NewRuntimeConfig().WithCloseOnContextDone(true)): a
// background ticker cancels each running guest's per-call context
// shortly after its owning mailbox group dies, which aborts any
// in-flight wazero call promptly instead of waiting for the guest to
// reach a natural suspension point. This stands in for wazero's native
// epoch-tick preemption, which this host does not use directly.
package wasmhost
