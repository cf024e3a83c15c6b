package hearth

import "errors"

// Capability errors.
var (
	ErrInvalidHandle      = errors.New("hearth: invalid handle")
	ErrPermissionDenied   = errors.New("hearth: capability lacks required permission")
	ErrRefcountUnderflow  = errors.New("hearth: reference count underflow")
	ErrPermissionEscalate = errors.New("hearth: demote requires a subset of the original permissions")
)

// Lifecycle errors ("operation on a killed group; receive on a destroyed mailbox").
var (
	ErrGroupKilled       = errors.New("hearth: mailbox group has been killed")
	ErrMailboxDestroyed  = errors.New("hearth: mailbox has been destroyed")
	ErrRouteClosed       = errors.New("hearth: route is closed")
	ErrParentIndestructible = errors.New("hearth: the parent mailbox cannot be destroyed")
)

// Resource errors ("lump not found; asset loader missing for type").
var (
	ErrLumpNotFound        = errors.New("hearth: lump not found")
	ErrLoaderNotRegistered = errors.New("hearth: no loader registered for this asset type")
	ErrLoaderAlreadyRegistered = errors.New("hearth: loader already registered for this asset type")
)

// Serialization errors ("malformed JSON in a service request, malformed
// frame in a connection").
var (
	ErrMalformedRequest = errors.New("hearth: malformed request payload")
	ErrMalformedFrame   = errors.New("hearth: malformed connection frame")
)

// Guest errors ("Wasm trap, missing required export, epoch-preemption kill").
var (
	ErrGuestTrap          = errors.New("hearth: guest trap")
	ErrMissingRequiredExport = errors.New("hearth: guest module is missing a required export")
	ErrEpochKilled        = errors.New("hearth: guest killed by epoch preemption")
)

// I/O errors ("transport failures on connections").
var (
	ErrConnectionClosed = errors.New("hearth: connection closed")
)
