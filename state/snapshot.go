// Package state holds the replicated study state: highlights, the note and
// the settings bag, each value paired with last-writer-wins metadata.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Timestamp is a wall-clock time in microseconds since the Unix epoch. It is
// the only order used to resolve conflicting writes, so devices with skewed
// clocks can overwrite each other's newer edits.
type Timestamp int64

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

// Time converts ts back to a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMicro(int64(ts))
}

// Meta records when a field was last written and whether that write deleted it.
type Meta struct {
	Ts      Timestamp `json:"ts"`
	Deleted bool      `json:"deleted,omitempty"`
}

// SyncMeta is the metadata half of a snapshot.
type SyncMeta struct {
	Highlights map[string]Meta `json:"highlights"`
	Notes      *Meta           `json:"notes"`
	Settings   map[string]Meta `json:"settings"`
}

// Snapshot is a full point-in-time copy of the replicated fields plus their
// metadata. It is also the sync-data wire payload.
type Snapshot struct {
	Highlights map[string]string `json:"highlights"`
	Notes      string            `json:"notes"`
	Settings   map[string]any    `json:"settings"`
	SyncMeta   SyncMeta          `json:"syncMeta"`
	DeviceID   string            `json:"deviceId,omitempty"`
	Timestamp  Timestamp         `json:"timestamp,omitempty"`
}

// New returns an empty snapshot.
func New() *Snapshot {
	s := &Snapshot{}
	s.Normalize()
	return s
}

// Normalize allocates nil maps, e.g. after decoding a sparse payload.
func (s *Snapshot) Normalize() {
	if s.Highlights == nil {
		s.Highlights = map[string]string{}
	}
	if s.Settings == nil {
		s.Settings = map[string]any{}
	}
	if s.SyncMeta.Highlights == nil {
		s.SyncMeta.Highlights = map[string]Meta{}
	}
	if s.SyncMeta.Settings == nil {
		s.SyncMeta.Settings = map[string]Meta{}
	}
}

// Unmarshal decodes a JSON snapshot. Numbers inside settings are kept as
// json.Number so they round-trip unchanged.
func Unmarshal(data []byte) (*Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	s := &Snapshot{}
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s.Normalize()
	return s, nil
}

// HighlightMeta returns the metadata for ref; absent entries have ts 0.
func (s *Snapshot) HighlightMeta(ref string) Meta {
	return s.SyncMeta.Highlights[ref]
}

// NotesMeta returns the notes metadata; absent metadata has ts 0.
func (s *Snapshot) NotesMeta() Meta {
	if s.SyncMeta.Notes == nil {
		return Meta{}
	}
	return *s.SyncMeta.Notes
}

// SettingMeta returns the metadata for key; absent entries have ts 0.
func (s *Snapshot) SettingMeta(key string) Meta {
	return s.SyncMeta.Settings[key]
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Highlights: make(map[string]string, len(s.Highlights)),
		Notes:      s.Notes,
		Settings:   make(map[string]any, len(s.Settings)),
		SyncMeta: SyncMeta{
			Highlights: make(map[string]Meta, len(s.SyncMeta.Highlights)),
			Settings:   make(map[string]Meta, len(s.SyncMeta.Settings)),
		},
		DeviceID:  s.DeviceID,
		Timestamp: s.Timestamp,
	}
	for k, v := range s.Highlights {
		c.Highlights[k] = v
	}
	for k, v := range s.Settings {
		c.Settings[k] = CloneValue(v)
	}
	for k, v := range s.SyncMeta.Highlights {
		c.SyncMeta.Highlights[k] = v
	}
	for k, v := range s.SyncMeta.Settings {
		c.SyncMeta.Settings[k] = v
	}
	if s.SyncMeta.Notes != nil {
		m := *s.SyncMeta.Notes
		c.SyncMeta.Notes = &m
	}
	return c
}

// CloneValue deep-copies a decoded JSON value.
func CloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = CloneValue(e)
		}
		return m
	case []any:
		l := make([]any, len(v))
		for i, e := range v {
			l[i] = CloneValue(e)
		}
		return l
	default:
		return v
	}
}

// ForWire returns a copy of s without device-local settings, stamped with the
// sending device and time.
func (s *Snapshot) ForWire(deviceID string, now Timestamp) *Snapshot {
	c := s.Clone()
	for key := range c.Settings {
		if IsLocalOnly(key) {
			delete(c.Settings, key)
		}
	}
	for key := range c.SyncMeta.Settings {
		if IsLocalOnly(key) {
			delete(c.SyncMeta.Settings, key)
		}
	}
	c.DeviceID = deviceID
	c.Timestamp = now
	return c
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s *Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("highlights", len(s.Highlights))
	enc.AddInt("settings", len(s.Settings))
	enc.AddInt("notes_len", len(s.Notes))
	if s.DeviceID != "" {
		enc.AddString("device", s.DeviceID)
	}
	if s.Timestamp != 0 {
		enc.AddTime("taken", s.Timestamp.Time())
	}
	return nil
}

// Field names a replicated field kind.
type Field string

const (
	FieldHighlight Field = "highlight"
	FieldNotes     Field = "notes"
	FieldSetting   Field = "setting"
)

// Change is a single local edit.
type Change struct {
	Field  Field
	Key    string
	Value  any
	Delete bool
}

// ErrInvalidChange is returned by Apply for changes that can't be applied.
var ErrInvalidChange = errors.New("invalid change")

// Apply writes c into s together with its metadata and returns the timestamp
// recorded for it. The recorded timestamp is now, or one microsecond past the
// field's previous timestamp if the clock hasn't moved beyond it.
func (s *Snapshot) Apply(c Change, now Timestamp) (Timestamp, error) {
	s.Normalize()
	switch c.Field {
	case FieldHighlight:
		if c.Key == "" {
			return 0, fmt.Errorf("%w: empty highlight ref", ErrInvalidChange)
		}
		ts := next(s.SyncMeta.Highlights[c.Key].Ts, now)
		if c.Delete {
			delete(s.Highlights, c.Key)
			s.SyncMeta.Highlights[c.Key] = Meta{Ts: ts, Deleted: true}
			return ts, nil
		}
		color, ok := c.Value.(string)
		if !ok {
			return 0, fmt.Errorf("%w: highlight %q value %T", ErrInvalidChange, c.Key, c.Value)
		}
		s.Highlights[c.Key] = color
		s.SyncMeta.Highlights[c.Key] = Meta{Ts: ts}
		return ts, nil
	case FieldNotes:
		text, ok := c.Value.(string)
		if !ok && !c.Delete {
			return 0, fmt.Errorf("%w: notes value %T", ErrInvalidChange, c.Value)
		}
		ts := next(s.NotesMeta().Ts, now)
		s.Notes = text
		s.SyncMeta.Notes = &Meta{Ts: ts}
		return ts, nil
	case FieldSetting:
		if c.Key == "" {
			return 0, fmt.Errorf("%w: empty setting key", ErrInvalidChange)
		}
		ts := next(s.SyncMeta.Settings[c.Key].Ts, now)
		if c.Delete {
			delete(s.Settings, c.Key)
			s.SyncMeta.Settings[c.Key] = Meta{Ts: ts, Deleted: true}
			return ts, nil
		}
		s.Settings[c.Key] = c.Value
		s.SyncMeta.Settings[c.Key] = Meta{Ts: ts}
		return ts, nil
	default:
		return 0, fmt.Errorf("%w: unknown field %q", ErrInvalidChange, c.Field)
	}
}

func next(prev, now Timestamp) Timestamp {
	if now <= prev {
		return prev + 1
	}
	return now
}
