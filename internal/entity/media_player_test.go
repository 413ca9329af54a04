package entity

import (
	"reflect"
	"testing"

	"github.com/hwaldner/avrbridge/internal/avr"
)

func seedAttributes() map[string]any {
	return map[string]any{
		avr.AttrState:         "on",
		avr.AttrVolume:        50.0,
		avr.AttrMuted:         false,
		avr.AttrSource:        "Blu-ray",
		avr.AttrSourceList:    []string{"Blu-ray", "Game"},
		avr.AttrSoundMode:     "Stereo",
		avr.AttrSoundModeList: []string{"Stereo", "Surround"},
		avr.AttrMediaTitle:    "",
		avr.AttrMediaArtist:   "",
		avr.AttrMediaAlbum:    "",
		avr.AttrMediaImageURL: "",
	}
}

func TestApplyFiltersUnchanged(t *testing.T) {
	mp := NewMediaPlayer("avr-1", "Living Room", seedAttributes())

	diff := mp.Apply(map[string]any{
		avr.AttrState:  "on",
		avr.AttrVolume: 50.0,
		avr.AttrMuted:  false,
	})
	if len(diff) != 0 {
		t.Errorf("diff = %v, want empty for unchanged update", diff)
	}
}

func TestApplyReturnsChangedKeysOnly(t *testing.T) {
	mp := NewMediaPlayer("avr-1", "Living Room", seedAttributes())

	diff := mp.Apply(map[string]any{
		avr.AttrState:  "on",
		avr.AttrVolume: 60.0,
		avr.AttrMuted:  false,
	})
	want := map[string]any{avr.AttrVolume: 60.0}
	if !reflect.DeepEqual(diff, want) {
		t.Errorf("diff = %v, want %v", diff, want)
	}

	// The cache advanced, so the same update is now a no-op.
	if diff := mp.Apply(map[string]any{avr.AttrVolume: 60.0}); len(diff) != 0 {
		t.Errorf("second apply diff = %v, want empty", diff)
	}
}

func TestApplyOffStateClearsMedia(t *testing.T) {
	attrs := seedAttributes()
	attrs[avr.AttrState] = "playing"
	attrs[avr.AttrMediaTitle] = "Track One"
	attrs[avr.AttrMediaArtist] = "Artist"
	mp := NewMediaPlayer("avr-1", "Living Room", attrs)

	diff := mp.Apply(map[string]any{avr.AttrState: "off"})

	if diff[avr.AttrState] != "off" {
		t.Fatalf("state = %v, want off", diff[avr.AttrState])
	}
	for _, key := range []string{
		avr.AttrMediaTitle, avr.AttrMediaArtist, avr.AttrMediaAlbum,
		avr.AttrMediaImageURL, avr.AttrSource,
	} {
		if v, ok := diff[key]; !ok || v != "" {
			t.Errorf("diff[%s] = %v, want empty string", key, v)
		}
	}

	if got := mp.Attributes()[avr.AttrMediaTitle]; got != "" {
		t.Errorf("cached media title = %v after off", got)
	}
}

func TestApplySkipsNilValues(t *testing.T) {
	mp := NewMediaPlayer("avr-1", "Living Room", seedAttributes())

	diff := mp.Apply(map[string]any{avr.AttrSource: nil})
	if len(diff) != 0 {
		t.Errorf("diff = %v, want nil value skipped", diff)
	}
}

func TestApplyListChanges(t *testing.T) {
	mp := NewMediaPlayer("avr-1", "Living Room", seedAttributes())

	same := mp.Apply(map[string]any{
		avr.AttrSourceList: []string{"Blu-ray", "Game"},
	})
	if len(same) != 0 {
		t.Errorf("diff = %v, want identical list filtered", same)
	}

	changed := mp.Apply(map[string]any{
		avr.AttrSourceList: []string{"Blu-ray", "Game", "TV"},
	})
	if _, ok := changed[avr.AttrSourceList]; !ok {
		t.Errorf("diff = %v, want new source list included", changed)
	}
}

func TestApplyListsOnEmptyCache(t *testing.T) {
	mp := NewMediaPlayer("avr-1", "Living Room", nil)

	diff := mp.Apply(map[string]any{
		avr.AttrState:         "on",
		avr.AttrSourceList:    []string{"Blu-ray", "Game"},
		avr.AttrSoundModeList: []string{"Stereo", "Surround"},
	})
	if _, ok := diff[avr.AttrSourceList]; !ok {
		t.Errorf("diff = %v, want source list on first apply", diff)
	}
	if _, ok := diff[avr.AttrSoundModeList]; !ok {
		t.Errorf("diff = %v, want sound mode list on first apply", diff)
	}

	// Lists are cached now, so repeating them is a no-op.
	again := mp.Apply(map[string]any{
		avr.AttrSourceList:    []string{"Blu-ray", "Game"},
		avr.AttrSoundModeList: []string{"Stereo", "Surround"},
	})
	if len(again) != 0 {
		t.Errorf("second apply diff = %v, want empty", again)
	}
}

func TestApplyNewKeyIncluded(t *testing.T) {
	mp := NewMediaPlayer("avr-1", "Living Room", map[string]any{})

	diff := mp.Apply(map[string]any{avr.AttrVolume: 40.0})
	if diff[avr.AttrVolume] != 40.0 {
		t.Errorf("diff = %v, want volume for previously unseen key", diff)
	}
}

func TestMediaPlayerID(t *testing.T) {
	mp := NewMediaPlayer("avr-1", "Living Room", nil)
	if mp.ID() != "media_player.avr-1" {
		t.Errorf("ID() = %q", mp.ID())
	}
	if mp.DeviceID() != "avr-1" {
		t.Errorf("DeviceID() = %q", mp.DeviceID())
	}
}

func TestManager(t *testing.T) {
	mgr := NewManager()

	mgr.Add("avr-2", "Office", seedAttributes())
	mgr.Add("avr-1", "Cinema", seedAttributes())

	if mgr.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", mgr.Count())
	}

	if _, ok := mgr.Get("avr-1"); !ok {
		t.Error("Get(avr-1) not found")
	}
	if mp, ok := mgr.GetByEntityID("media_player.avr-2"); !ok || mp.Name() != "Office" {
		t.Errorf("GetByEntityID = %v, %v", mp, ok)
	}
	if _, ok := mgr.GetByEntityID("media_player.nope"); ok {
		t.Error("GetByEntityID(nope) should miss")
	}

	all := mgr.All()
	if len(all) != 2 || all[0].DeviceID() != "avr-1" {
		t.Errorf("All() order wrong: %v", all)
	}

	mgr.Remove("avr-1")
	if _, ok := mgr.Get("avr-1"); ok {
		t.Error("Get(avr-1) found after Remove")
	}
}
