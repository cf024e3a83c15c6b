package wasmhost

import (
	"context"

	"github.com/cuemby/hearthd/pkg/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// logLevelNames mirrors the guest log ABI's level codes: Trace=0,
// Debug=1, Info=2, Warning=3, Error=4.
var logLevelNames = [...]string{"trace", "debug", "info", "warning", "error"}

func (h *Host) registerLogABI(ctx context.Context) error {
	return h.instantiateHostModule(ctx, "hearth::log", func(b wazero.HostModuleBuilder) {
		b.NewFunctionBuilder().WithFunc(h.abiLogLog).Export("log")
	})
}

// abiLogLog emits a structured log event in the calling guest's
// tracing scope.
func (h *Host) abiLogLog(ctx context.Context, mod api.Module, level, modulePtr, moduleLen, contentPtr, contentLen uint32) uint32 {
	g := h.guestOf(mod)
	if g == nil {
		return errFault
	}

	moduleName, ok := readGuestBytes(mod, modulePtr, moduleLen)
	if !ok {
		return errFault
	}
	content, ok := readGuestBytes(mod, contentPtr, contentLen)
	if !ok {
		return errFault
	}

	levelName := "info"
	if int(level) < len(logLevelNames) {
		levelName = logLevelNames[level]
	}

	entry := log.WithPid(g.proc.Info.Pid).With().Str("guest_module", string(moduleName)).Logger()
	switch levelName {
	case "trace", "debug":
		entry.Debug().Msg(string(content))
	case "warning":
		entry.Warn().Msg(string(content))
	case "error":
		entry.Error().Msg(string(content))
	default:
		entry.Info().Msg(string(content))
	}
	return errOK
}
