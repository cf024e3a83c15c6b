package wasmhost

import "github.com/tetratelabs/wazero/api"

// ABI return codes. Every fallible host function returns one of these;
// guests are expected to check the result before trusting any output
// parameters a call may have written.
const (
	errOK               uint32 = 0
	errInvalidHandle    uint32 = 1
	errPermissionDenied uint32 = 2
	errFault            uint32 = 3 // bad pointer/length, or a lower-level store error
	errNoSignal         uint32 = 4
	errGroupKilled      uint32 = 5
	errWrongPhase       uint32 = 6
)

func readGuestBytes(mod api.Module, ptr, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	return mod.Memory().Read(ptr, length)
}

func writeGuestBytes(mod api.Module, ptr uint32, data []byte) bool {
	if len(data) == 0 {
		return true
	}
	return mod.Memory().Write(ptr, data)
}

func writeGuestU32(mod api.Module, ptr uint32, v uint32) bool {
	return mod.Memory().WriteUint32Le(ptr, v)
}

func readGuestU32(mod api.Module, ptr uint32) (uint32, bool) {
	return mod.Memory().ReadUint32Le(ptr)
}
