// Package runtime assembles a post office, process factory, lump and
// asset stores, and the registry process into one running hearthd
// instance.
//
// # Plugin topology
//
// A Plugin is added with Builder.AddPlugin, which calls its Build
// method immediately. Build may itself call AddPlugin, AddService,
// AddAssetLoader, or AddRunner — nested plugins build before the
// AddPlugin call that discovered them returns.
//
// Once every plugin from the initial build pass has built, Finalize
// runs on each plugin that implements Finalizer, in the reverse of
// build order: the most recently built plugin finalizes first. A
// Finalize call may itself add further plugins; those build and then
// finalize before control returns to the plugin whose Finalize call
// added them, which is exactly stack (LIFO) discipline, so Builder
// implements plugin bookkeeping as a single stack pushed to by both
// Build and Finalize and popped until empty.
//
// # Services and runners
//
// A service is a named capability registered with the registry
// builder plus a Runner scheduled to execute once the runtime starts.
// Runtime.Start launches every runner in its own goroutine and waits
// for each to signal readiness before returning, so a caller of Start
// knows every declared service's own accept/serve loop has actually
// entered its loop rather than merely been scheduled.
package runtime
