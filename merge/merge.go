// Package merge resolves an incoming snapshot into the local one with
// per-field last-writer-wins. A field is only overwritten when the incoming
// timestamp is strictly greater; on a tie the local value stays.
package merge

import (
	"go.uber.org/zap/zapcore"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

// Result counts the fields that changed during a merge.
type Result struct {
	Changed    bool
	Highlights int
	Notes      int
	Settings   int
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (r Result) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddBool("changed", r.Changed)
	enc.AddInt("highlights", r.Highlights)
	enc.AddInt("notes", r.Notes)
	enc.AddInt("settings", r.Settings)
	return nil
}

// Merge applies incoming onto local in place. Device-local settings are never
// touched, whatever their timestamps.
func Merge(local, incoming *state.Snapshot) Result {
	local.Normalize()
	var r Result
	r.Highlights = mergeHighlights(local, incoming)
	r.Notes = mergeNotes(local, incoming)
	r.Settings = mergeSettings(local, incoming)
	r.Changed = r.Highlights+r.Notes+r.Settings > 0
	return r
}

func mergeHighlights(local, incoming *state.Snapshot) int {
	changed := 0
	for _, ref := range unionKeys(incoming.Highlights, incoming.SyncMeta.Highlights) {
		in := incoming.HighlightMeta(ref)
		if in.Ts <= local.HighlightMeta(ref).Ts {
			continue
		}
		if in.Deleted {
			delete(local.Highlights, ref)
			local.SyncMeta.Highlights[ref] = state.Meta{Ts: in.Ts, Deleted: true}
			changed++
			continue
		}
		color, ok := incoming.Highlights[ref]
		if !ok {
			// live metadata without a value carries nothing to apply
			continue
		}
		local.Highlights[ref] = color
		local.SyncMeta.Highlights[ref] = state.Meta{Ts: in.Ts}
		changed++
	}
	return changed
}

func mergeNotes(local, incoming *state.Snapshot) int {
	in := incoming.NotesMeta()
	if in.Ts <= local.NotesMeta().Ts {
		return 0
	}
	local.Notes = incoming.Notes
	local.SyncMeta.Notes = &state.Meta{Ts: in.Ts}
	return 1
}

func mergeSettings(local, incoming *state.Snapshot) int {
	changed := 0
	for _, key := range unionKeys(incoming.Settings, incoming.SyncMeta.Settings) {
		if state.IsLocalOnly(key) {
			continue
		}
		in := incoming.SettingMeta(key)
		if in.Ts <= local.SettingMeta(key).Ts {
			continue
		}
		if in.Deleted {
			delete(local.Settings, key)
			local.SyncMeta.Settings[key] = state.Meta{Ts: in.Ts, Deleted: true}
			changed++
			continue
		}
		value, ok := incoming.Settings[key]
		if !ok {
			continue
		}
		local.Settings[key] = state.CloneValue(value)
		local.SyncMeta.Settings[key] = state.Meta{Ts: in.Ts}
		changed++
	}
	return changed
}

func unionKeys[V any](values map[string]V, meta map[string]state.Meta) []string {
	keys := make([]string, 0, len(values)+len(meta))
	seen := make(map[string]struct{}, len(values)+len(meta))
	for k := range values {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range meta {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
