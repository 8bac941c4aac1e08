package state

import "sort"

// Setting keys that hold device-local records. They are persisted next to the
// replicated settings but never leave the device.
const (
	KeyConnectedDevices = "connectedDevices"
	KeyPeerID           = "syncPeerId"
	KeyDeviceID         = "syncDeviceId"
	KeyAutoSync         = "autoSync"
)

// localOnly lists settings that describe this device's UI rather than shared
// user data. They are excluded from replication.
var localOnly = map[string]struct{}{
	"panelWidth":          {},
	"panelLayout":         {},
	"sidebarWidth":        {},
	"referencePanelWidth": {},
	"referencePanelOpen":  {},
	"collapsedSections":   {},
	"hotkeys":             {},
	"hotkeysEnabled":      {},
	"currentBook":         {},
	"currentChapter":      {},
	"currentPassage":      {},
	"scrollPosition":      {},
	"fontSize":            {},
	"notesFontSize":       {},
	KeyConnectedDevices:   {},
	KeyPeerID:             {},
	KeyDeviceID:           {},
	KeyAutoSync:           {},
}

// IsLocalOnly reports whether key is excluded from replication.
func IsLocalOnly(key string) bool {
	_, ok := localOnly[key]
	return ok
}

// LocalOnlyKeys returns the skip-list in sorted order.
func LocalOnlyKeys() []string {
	keys := make([]string, 0, len(localOnly))
	for k := range localOnly {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
