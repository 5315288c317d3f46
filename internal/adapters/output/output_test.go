package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/media_picker/internal/core"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

func TestJSONPrinter(t *testing.T) {
	var buf bytes.Buffer
	result := core.PickResult{Selection: mp.Selection{MediaContentID: "a"}, Title: "A"}
	if err := (JSONPrinter{Out: &buf}).Print(result); err != nil {
		t.Fatalf("print: %v", err)
	}
	var decoded core.PickResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Selection.MediaContentID != "a" || decoded.Title != "A" {
		t.Fatalf("unexpected output %s", buf.String())
	}
}

func TestHumanPrinterPick(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	result := core.PickResult{
		Selection: mp.Selection{
			MediaContentID:   "spotify:track:x",
			MediaBrowserPath: []mp.Descriptor{{ID: "root"}, {ID: "albums"}},
		},
		Title: "Band - Song",
	}
	if err := (HumanPrinter{Out: &buf}).Print(result); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Band - Song") || !strings.Contains(out, "root > albums") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNotifierQuiet(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	n := Notifier{Out: &buf, Quiet: true}
	n.Notify("Media set to Song", false)
	if buf.Len() != 0 {
		t.Fatalf("expected quiet info, got %q", buf.String())
	}
	n.Notify("Search is not available for this player", true)
	if !strings.Contains(buf.String(), "Search is not available") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}
