package log

import (
	"fmt"

	"go.uber.org/zap"
)

const shortLen = 8

// ZShortStringer logs the first characters of a long identifier.
func ZShortStringer(name string, val fmt.Stringer) zap.Field {
	if val == nil {
		return zap.Skip()
	}
	return ZShortString(name, val.String())
}

// ZShortString is ZShortStringer for plain strings. Pairing codes are short
// already and pass through unchanged.
func ZShortString(name, val string) zap.Field {
	if len(val) > shortLen {
		val = val[:shortLen]
	}
	return zap.String(name, val)
}

// ZPeer is the field every component uses for a remote pairing code.
func ZPeer(peerID string) zap.Field {
	return zap.String("peer", peerID)
}

// ZDevice is the field for a (remote or local) device id.
func ZDevice(deviceID string) zap.Field {
	return ZShortString("device", deviceID)
}
