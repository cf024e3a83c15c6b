/*
Package log provides structured logging for hearthd using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-scoped and pid-scoped child loggers, configurable log levels, and
helper functions for common logging patterns. All logs include timestamps
and support filtering by severity level.

# Component scopes

Every runtime subsystem logs through a component-scoped logger:
post-office, table, mailbox, registry, connection, wasm, lump, asset.
Guest-originated log events (the hearth::log ABI) and guest traps are
additionally tagged with the originating process's pid via WithPid, so a
single process's entire lifetime can be filtered out of the stream
regardless of which subsystem logged on its behalf.

# Log levels

Debug: detailed scheduling and ABI call tracing, verbose.
Info: process spawns, route closures, connection handshakes.
Warn: recoverable conditions (duplicate loader registration, malformed
remote frames, missing optional wasm exports).
Error: operation failures — trap errors, ABI errors, I/O failures.
Fatal: unrecoverable startup failures only.
*/
package log
