package form

import (
	"testing"

	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

func TestApplyDropsStaleTarget(t *testing.T) {
	f := New()
	f.Update(State{Selection: mp.Selection{MediaContentID: "second"}}, OriginUser, nil)

	called := false
	err := f.Apply("first", OriginMerge, func(s State) (State, bool) {
		called = true
		return s, true
	})
	if !media.IsKind(err, media.KindStale) {
		t.Fatalf("expected stale_result, got %v", err)
	}
	if called {
		t.Fatalf("merge must not run for a stale target")
	}
}

func TestApplyTagsOrigin(t *testing.T) {
	f := New()
	var origins []Origin
	f.Subscribe(func(c Change) { origins = append(origins, c.Origin) })

	f.Update(State{Selection: mp.Selection{MediaContentID: "a"}}, OriginUser, nil)
	err := f.Apply("a", OriginMerge, func(s State) (State, bool) {
		s.Selection.Thumbnail = "thumb.png"
		return s, true
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(origins) != 2 || origins[0] != OriginUser || origins[1] != OriginMerge {
		t.Fatalf("unexpected origins %v", origins)
	}
	if got := f.State().Selection.Thumbnail; got != "thumb.png" {
		t.Fatalf("expected merged thumbnail, got %q", got)
	}
}

func TestApplyWithoutChangeIsSilent(t *testing.T) {
	f := New()
	f.Update(State{Selection: mp.Selection{MediaContentID: "a"}}, OriginUser, nil)
	notified := 0
	f.Subscribe(func(Change) { notified++ })
	if err := f.Apply(" a ", OriginMerge, func(s State) (State, bool) { return s, false }); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if notified != 0 {
		t.Fatalf("expected no notification for unchanged state")
	}
}

func TestStateIsCopied(t *testing.T) {
	f := New()
	f.Update(State{Selection: mp.Selection{MediaContentID: "a", Metadata: map[string]any{"artist": "x"}}}, OriginUser, nil)
	state := f.State()
	state.Selection.Metadata["artist"] = "y"
	if f.State().Selection.Metadata["artist"] != "x" {
		t.Fatalf("state leaked internal map")
	}
}
