// Package registry provides the runtime's single well-known lookup
// service: a process whose entire state is a name→capability map,
// assembled once at runtime construction and served read-only for the
// runtime's lifetime.
//
// Other processes reach the registry through the capability the runtime
// hands out (Runtime.RegistryCapability; hearthd offers it as the root
// capability of every accepted connection), and address it with the
// reply-capability-in-position-0 convention used by every service
// process in this codebase:
//
//	request  = {"op": "get", "name": "hearth.clock"}, caps: [replyTo]
//	response = {"op": "get", "found": true}, caps: [clockCap]
//
// Register always replies found=false/ignored: the registry is built
// once from a Builder during runtime construction and is immutable for
// the remainder of the runtime's life. There is deliberately no dynamic
// registration path — a guest that wants to publish a service does so by
// capability passing through an already-registered directory process,
// not through the well-known registry.
package registry
