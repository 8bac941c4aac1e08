// Package events carries user facing notifications from the syncer to
// whatever renders connection status.
package events

import (
	"time"

	"github.com/jd-code76/provinent-scripture-study-sub000/merge"
	"github.com/jd-code76/provinent-scripture-study-sub000/registry"
)

type EventType string

const (
	TypePeerReady           EventType = "peer-ready"
	TypePeerConnected       EventType = "peer-connected"
	TypePeerDisconnected    EventType = "peer-disconnected"
	TypeSyncInProgress      EventType = "sync-in-progress"
	TypeSyncComplete        EventType = "sync-complete"
	TypeSyncMerged          EventType = "sync-merged"
	TypeDeviceAdded         EventType = "device-added"
	TypeDeviceUpdated       EventType = "device-updated"
	TypeDeviceRemoved       EventType = "device-removed"
	TypePairingStarted      EventType = "pairing-started"
	TypeAllReconnectsFailed EventType = "all-reconnects-failed"
	TypeTransportError      EventType = "transport-error"
	TypeVersionMismatch     EventType = "version-mismatch"
	TypeAuthFailed          EventType = "auth-failed"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	PeerID    string    `json:"peerId,omitempty"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Help      string    `json:"help"`
	Failure   bool      `json:"failure"`
	Details   any       `json:"details,omitempty"`
}

type EventPeerReady struct {
	PeerID string `json:"peerId"`
}

func (b *Bus) EmitPeerReady(peerID string) {
	const help = "Local endpoint is open. Other devices can pair using this code."
	b.Emit(Event{Type: TypePeerReady, PeerID: peerID, Help: help, Details: EventPeerReady{PeerID: peerID}})
}

func (b *Bus) EmitPeerConnected(peerID string) {
	const help = "Data channel to the peer is open and authenticated."
	b.Emit(Event{Type: TypePeerConnected, PeerID: peerID, Help: help})
}

func (b *Bus) EmitPeerDisconnected(peerID string) {
	const help = "Connection to the peer was closed."
	b.Emit(Event{Type: TypePeerDisconnected, PeerID: peerID, Help: help})
}

func (b *Bus) EmitSyncInProgress(peerID string) {
	const help = "Merging state received from the peer."
	b.Emit(Event{Type: TypeSyncInProgress, PeerID: peerID, Help: help})
}

func (b *Bus) EmitSyncComplete(peerID string) {
	const help = "Finished processing state received from the peer."
	b.Emit(Event{Type: TypeSyncComplete, PeerID: peerID, Help: help})
}

func (b *Bus) EmitSyncMerged(peerID, deviceID string, result merge.Result) {
	const help = "Newer highlights, notes or settings from the peer were applied locally."
	b.Emit(Event{Type: TypeSyncMerged, PeerID: peerID, DeviceID: deviceID, Help: help, Details: result})
}

func (b *Bus) EmitDeviceAdded(dev registry.RemoteDevice) {
	const help = "A new device completed the handshake and was remembered."
	b.Emit(Event{Type: TypeDeviceAdded, PeerID: dev.PeerID, DeviceID: dev.ID, Help: help, Details: dev})
}

func (b *Bus) EmitDeviceUpdated(dev registry.RemoteDevice) {
	const help = "A known device reconnected."
	b.Emit(Event{Type: TypeDeviceUpdated, PeerID: dev.PeerID, DeviceID: dev.ID, Help: help, Details: dev})
}

func (b *Bus) EmitDeviceRemoved(dev registry.RemoteDevice) {
	const help = "The device was forgotten and will not be reconnected."
	b.Emit(Event{Type: TypeDeviceRemoved, PeerID: dev.PeerID, DeviceID: dev.ID, Help: help, Details: dev})
}

type EventPairingStarted struct {
	Code string `json:"code"`
}

func (b *Bus) EmitPairingStarted(code string) {
	const help = "Enter this code on the other device to pair."
	b.Emit(Event{Type: TypePairingStarted, PeerID: code, Help: help, Details: EventPairingStarted{Code: code}})
}

type EventAllReconnectsFailed struct {
	Devices []string `json:"devices"`
}

func (b *Bus) EmitAllReconnectsFailed(peers []string) {
	const help = "None of the known devices could be reached. Retry or remove them."
	b.Emit(Event{
		Type:    TypeAllReconnectsFailed,
		Help:    help,
		Failure: true,
		Details: EventAllReconnectsFailed{Devices: peers},
	})
}

type EventError struct {
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}

func (b *Bus) EmitTransportError(peerID, kind string, err error) {
	const help = "The peer transport reported an error. Examine logs."
	b.Emit(Event{
		Type:    TypeTransportError,
		PeerID:  peerID,
		Help:    help,
		Failure: true,
		Details: EventError{Kind: kind, Error: err.Error()},
	})
}

type EventVersionMismatch struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

func (b *Bus) EmitVersionMismatch(peerID, local, remote string) {
	const help = "The peer runs a different protocol version. Update both devices to sync."
	b.Emit(Event{
		Type:    TypeVersionMismatch,
		PeerID:  peerID,
		Help:    help,
		Failure: true,
		Details: EventVersionMismatch{Local: local, Remote: remote},
	})
}

func (b *Bus) EmitAuthFailed(peerID string, err error) {
	const help = "The peer failed the challenge and was disconnected."
	b.Emit(Event{
		Type:    TypeAuthFailed,
		PeerID:  peerID,
		Help:    help,
		Failure: true,
		Details: EventError{Error: err.Error()},
	})
}
