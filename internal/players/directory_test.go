package players

import (
	"testing"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

func testDirectory() Directory {
	return NewDirectory([]mp.EntityState{
		{EntityID: "media_player.kitchen", Attributes: map[string]any{"friendly_name": "Kitchen"}},
		{EntityID: "media_player.ma_lounge", Attributes: map[string]any{"mass_player_type": "player"}},
		{EntityID: "media_player.spotify_bob", Platform: "spotify"},
		{EntityID: "media_player.spotify_legacy"},
		{EntityID: "media_player.spotifyplus_bob", Platform: "SpotifyPlus"},
		{EntityID: "media_player.spotifyplus_alice", Platform: "spotifyplus"},
		{EntityID: "media_player.den", Platform: "music_assistant"},
		{EntityID: "sensor.temperature"},
	})
}

func TestFamily(t *testing.T) {
	dir := testDirectory()
	tests := map[string]Family{
		"media_player.kitchen":         FamilyHomeAssistant,
		"media_player.ma_lounge":       FamilyMusicAssistant,
		"media_player.den":             FamilyMusicAssistant,
		"media_player.spotify_bob":     FamilySpotify,
		"media_player.spotify_legacy":  FamilySpotify,
		"media_player.spotifyplus_bob": FamilySpotify,
		"":                             FamilyUnknown,
	}
	for id, expected := range tests {
		if got := dir.Family(id); got != expected {
			t.Fatalf("%s expected %s got %s", id, expected, got)
		}
	}
}

func TestSearchSupport(t *testing.T) {
	dir := testDirectory()
	tests := map[string]SearchSupport{
		"media_player.kitchen":         SearchMediaSource,
		"media_player.ma_lounge":       SearchMusicAssistant,
		"media_player.spotify_bob":     SearchNone,
		"media_player.spotify_legacy":  SearchNone,
		"media_player.spotifyplus_bob": SearchMediaSource,
		"media_player.missing":         SearchNone,
	}
	for id, expected := range tests {
		if got := dir.SearchSupport(id); got != expected {
			t.Fatalf("%s expected %q got %q", id, expected, got)
		}
	}
}

func TestMetadataPlayer(t *testing.T) {
	dir := testDirectory()
	if got := dir.MetadataPlayer("media_player.spotifyplus_bob"); got != "media_player.spotifyplus_bob" {
		t.Fatalf("expected preferred spotifyplus player, got %q", got)
	}
	if got := dir.MetadataPlayer("media_player.bob"); got != "media_player.spotifyplus_bob" {
		t.Fatalf("expected suffix match, got %q", got)
	}
	if got := dir.MetadataPlayer("media_player.kitchen"); got != "media_player.spotifyplus_alice" {
		t.Fatalf("expected first candidate, got %q", got)
	}
	if got := NewDirectory(nil).MetadataPlayer("media_player.x"); got != "" {
		t.Fatalf("expected no metadata player, got %q", got)
	}
}

func TestPlayersAndNames(t *testing.T) {
	dir := testDirectory()
	players := dir.Players()
	if len(players) != 7 {
		t.Fatalf("expected 7 media players, got %d", len(players))
	}
	if players[0].EntityID != "media_player.den" {
		t.Fatalf("expected sorted players, got %s first", players[0].EntityID)
	}
	if got := dir.Name("media_player.kitchen"); got != "Kitchen" {
		t.Fatalf("expected friendly name, got %q", got)
	}
	if got := dir.Name("media_player.den"); got != "media_player.den" {
		t.Fatalf("expected entity id fallback, got %q", got)
	}
}
