package reconnect

import "context"

//go:generate mockgen -typed -package=reconnect -destination=./mocks.go -source=./interface.go

// Dialer opens an outbound connection to a pairing code.
type Dialer interface {
	Connect(ctx context.Context, peerID string) error
}

// Devices lists the pairing codes of the known remote devices.
type Devices interface {
	ReconnectTargets() []string
}

// Liveness reports the state of the connection to a peer.
type Liveness interface {
	Status(peerID string) Status
}
