package merge

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

func apply(t *testing.T, s *state.Snapshot, ts state.Timestamp, c state.Change) {
	t.Helper()
	_, err := s.Apply(c, ts)
	require.NoError(t, err)
}

func highlight(ref, color string) state.Change {
	return state.Change{Field: state.FieldHighlight, Key: ref, Value: color}
}

func unhighlight(ref string) state.Change {
	return state.Change{Field: state.FieldHighlight, Key: ref, Delete: true}
}

func setting(key string, value any) state.Change {
	return state.Change{Field: state.FieldSetting, Key: key, Value: value}
}

func replicated(s *state.Snapshot) *state.Snapshot {
	return s.ForWire("", 0)
}

func TestScenario(t *testing.T) {
	a := state.New()
	apply(t, a, 100, highlight("John 3:16", "yellow"))
	b := state.New()

	r := Merge(b, a.ForWire("a", 101))
	require.True(t, r.Changed)
	require.Equal(t, 1, r.Highlights)
	require.Equal(t, "yellow", b.Highlights["John 3:16"])
	require.Equal(t, state.Meta{Ts: 100}, b.HighlightMeta("John 3:16"))

	apply(t, b, 150, unhighlight("John 3:16"))
	r = Merge(a, b.ForWire("b", 151))
	require.True(t, r.Changed)
	require.NotContains(t, a.Highlights, "John 3:16")
	require.Equal(t, state.Meta{Ts: 150, Deleted: true}, a.HighlightMeta("John 3:16"))
}

func TestTombstone(t *testing.T) {
	t.Run("older add does not resurrect", func(t *testing.T) {
		local := state.New()
		apply(t, local, 200, unhighlight("Rom 8:28"))
		remote := state.New()
		apply(t, remote, 100, highlight("Rom 8:28", "green"))

		r := Merge(local, remote)
		require.False(t, r.Changed)
		require.NotContains(t, local.Highlights, "Rom 8:28")
		require.Equal(t, state.Meta{Ts: 200, Deleted: true}, local.HighlightMeta("Rom 8:28"))
	})
	t.Run("newer delete removes", func(t *testing.T) {
		local := state.New()
		apply(t, local, 200, highlight("Rom 8:28", "green"))
		remote := state.New()
		apply(t, remote, 300, unhighlight("Rom 8:28"))

		r := Merge(local, remote)
		require.True(t, r.Changed)
		require.NotContains(t, local.Highlights, "Rom 8:28")
		require.True(t, local.HighlightMeta("Rom 8:28").Deleted)
	})
}

func TestTieKeepsLocal(t *testing.T) {
	local := state.New()
	apply(t, local, 100, highlight("Ps 23:1", "red"))
	apply(t, local, 100, state.Change{Field: state.FieldNotes, Value: "mine"})
	remote := state.New()
	apply(t, remote, 100, highlight("Ps 23:1", "blue"))
	apply(t, remote, 100, state.Change{Field: state.FieldNotes, Value: "theirs"})

	require.False(t, Merge(local, remote).Changed)
	require.Equal(t, "red", local.Highlights["Ps 23:1"])
	require.Equal(t, "mine", local.Notes)
}

func TestValueWithoutMetaNeverWins(t *testing.T) {
	local := state.New()
	remote := state.New()
	remote.Highlights["Matt 5:9"] = "pink"
	remote.Settings["theme"] = "sepia"

	require.False(t, Merge(local, remote).Changed)
	require.Empty(t, local.Highlights)
	require.Empty(t, local.Settings)
}

func TestSkipList(t *testing.T) {
	local := state.New()
	apply(t, local, 10, setting("panelWidth", 300))
	remote := state.New()
	apply(t, remote, 1_000_000, setting("panelWidth", 800))
	apply(t, remote, 1_000_000, setting("fontSize", 22))
	apply(t, remote, 1_000_000, setting(state.KeyConnectedDevices, "[]"))

	r := Merge(local, remote)
	require.False(t, r.Changed)
	require.Equal(t, 300, local.Settings["panelWidth"])
	require.Equal(t, state.Meta{Ts: 10}, local.SettingMeta("panelWidth"))
	require.NotContains(t, local.Settings, "fontSize")
	require.NotContains(t, local.SyncMeta.Settings, "fontSize")
	require.NotContains(t, local.Settings, state.KeyConnectedDevices)
}

func TestSettings(t *testing.T) {
	local := state.New()
	apply(t, local, 10, setting("theme", "light"))
	apply(t, local, 50, setting("translation", "KJV"))
	remote := state.New()
	apply(t, remote, 20, setting("theme", "dark"))
	apply(t, remote, 40, setting("translation", "ESV"))
	apply(t, remote, 30, setting("languages", []any{"en", "de"}))

	r := Merge(local, remote)
	require.Equal(t, 2, r.Settings)
	require.Equal(t, "dark", local.Settings["theme"])
	require.Equal(t, "KJV", local.Settings["translation"])

	remote.Settings["languages"].([]any)[0] = "fr"
	require.Equal(t, "en", local.Settings["languages"].([]any)[0])
}

func TestIdempotent(t *testing.T) {
	local := state.New()
	apply(t, local, 5, highlight("Isa 40:31", "yellow"))
	remote := state.New()
	apply(t, remote, 7, highlight("Isa 40:31", "orange"))
	apply(t, remote, 8, unhighlight("Luke 2:1"))
	apply(t, remote, 9, state.Change{Field: state.FieldNotes, Value: "notes"})
	apply(t, remote, 9, setting("theme", "dark"))

	require.True(t, Merge(local, remote).Changed)
	before := local.Clone()
	r := Merge(local, remote)
	require.False(t, r.Changed)
	require.Equal(t, Result{}, r)
	require.Empty(t, cmp.Diff(before, local))
}

func randomSnapshot(rng *rand.Rand, tsBase state.Timestamp) *state.Snapshot {
	s := state.New()
	refs := []string{"Gen 1:1", "John 1:1", "Ps 46:10", "Heb 11:1", "Phil 4:13"}
	colors := []string{"yellow", "green", "blue", "pink"}
	for _, ref := range refs {
		// distinct timestamps per side keep the order total
		ts := tsBase + state.Timestamp(rng.IntN(50)*2)
		switch rng.IntN(3) {
		case 0:
		case 1:
			s.Apply(highlight(ref, colors[rng.IntN(len(colors))]), ts)
		case 2:
			s.Apply(unhighlight(ref), ts)
		}
	}
	if rng.IntN(2) == 0 {
		s.Apply(state.Change{Field: state.FieldNotes, Value: colors[rng.IntN(len(colors))]}, tsBase+state.Timestamp(rng.IntN(50)*2))
	}
	for _, key := range []string{"theme", "translation", "panelWidth"} {
		if rng.IntN(2) == 0 {
			s.Apply(setting(key, rng.IntN(100)), tsBase+state.Timestamp(rng.IntN(50)*2))
		}
	}
	return s
}

func TestConvergence(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		// even timestamps on one side and odd on the other never tie
		a := randomSnapshot(rng, 1000)
		b := randomSnapshot(rng, 1001)

		ab := a.Clone()
		Merge(ab, replicated(b))
		ba := b.Clone()
		Merge(ba, replicated(a))

		require.Equal(t, ab.Highlights, ba.Highlights, "iteration %d", i)
		require.Equal(t, ab.Notes, ba.Notes, "iteration %d", i)
		for key, v := range ab.Settings {
			if state.IsLocalOnly(key) {
				continue
			}
			require.Equal(t, v, ba.Settings[key], "iteration %d key %s", i, key)
		}
		require.Equal(t, ab.SyncMeta.Highlights, ba.SyncMeta.Highlights, "iteration %d", i)
	}
}
