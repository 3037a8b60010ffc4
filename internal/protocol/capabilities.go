package protocol

import (
	"fmt"

	internalerrors "github.com/jamesprial/mcp-runtime/internal/errors"
)

// requireServerCapability fails locally, before any wire traffic, if the
// server side of this session never advertised the capability an inbound
// method requires (spec.md §3, §7 <CapabilityMissing>).
func requireServerCapability(caps ServerCapabilities, have bool, method string) error {
	if have {
		return nil
	}
	return internalerrors.New("protocol", method, internalerrors.ErrCapabilityMissing, fmt.Errorf("server did not advertise capability required by %s", method))
}

// requireClientCapability is the mirror check for server-initiated reverse
// calls (sampling/createMessage, roots/list).
func requireClientCapability(have bool, method string) error {
	if have {
		return nil
	}
	return internalerrors.New("protocol", method, internalerrors.ErrCapabilityMissing, fmt.Errorf("client did not advertise capability required by %s", method))
}
