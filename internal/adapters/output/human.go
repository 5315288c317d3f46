package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/media_picker/internal/core"
	"github.com/mikey-austin/media_picker/internal/picker"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// HumanPrinter prints pterm tables, to stdout unless Out is set.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	out := writerOr(p.Out)
	switch data := v.(type) {
	case core.NodesResult:
		return printNodes(out, data)
	case core.PlayersResult:
		return printPlayers(out, data)
	case core.BrowseResult:
		return printBrowse(out, data)
	case core.SearchResult:
		return printSearch(out, data)
	case core.PickResult:
		return printPick(out, data)
	case core.ResolveResult:
		return printResolve(out, data)
	case core.PathResult:
		return printPath(out, data)
	default:
		_, err := fmt.Fprintln(out, "ok")
		return err
	}
}

func printNodes(out io.Writer, result core.NodesResult) error {
	data := pterm.TableData{{"NAME", "KIND", "NODE_ID"}}
	for _, node := range result.Nodes {
		data = append(data, []string{node.Name, node.Kind, node.NodeID})
	}
	return renderTable(out, data)
}

func printPlayers(out io.Writer, result core.PlayersResult) error {
	data := pterm.TableData{{"NAME", "ENTITY_ID", "STATE", "FAMILY", "BROWSE", "SEARCH"}}
	for _, player := range result.Players {
		search := string(player.Search)
		if search == "" {
			search = "-"
		}
		data = append(data, []string{
			player.Name,
			player.EntityID,
			player.State,
			string(player.Family),
			strconv.FormatBool(player.Browse),
			search,
		})
	}
	return renderTable(out, data)
}

func printBrowse(out io.Writer, result core.BrowseResult) error {
	titles := make([]string, 0, len(result.View.Crumbs))
	for _, crumb := range result.View.Crumbs {
		titles = append(titles, crumb.Title)
	}
	if _, err := fmt.Fprintln(out, pterm.Bold.Sprint(strings.Join(titles, " / "))); err != nil {
		return err
	}
	if len(result.View.Items) == 0 {
		_, err := fmt.Fprintln(out, "(empty)")
		return err
	}
	return printItems(out, result.View.Items)
}

func printSearch(out io.Writer, result core.SearchResult) error {
	if t := result.Telemetry; t != nil {
		line := fmt.Sprintf("%d results via %s in %dms", t.ResultCount, picker.TransportLabel(t.Transport), t.DurationMS)
		if t.Reason != "" {
			line += fmt.Sprintf(" (%s unavailable: %s)", picker.TransportLabel(t.BaseTransport), t.Reason)
		}
		if _, err := fmt.Fprintln(out, pterm.Gray(line)); err != nil {
			return err
		}
	}
	if len(result.Results) == 0 {
		_, err := fmt.Fprintln(out, "No results.")
		return err
	}
	return printItems(out, result.Results)
}

func printItems(out io.Writer, items []mp.MediaItem) error {
	data := pterm.TableData{{"#", "TITLE", "KIND", "DETAIL", "ID"}}
	for idx, item := range items {
		kind := "play"
		if item.CanExpand {
			kind = "open"
			if item.CanPlay {
				kind = "open/play"
			}
		}
		data = append(data, []string{
			strconv.Itoa(idx),
			item.Title,
			kind,
			item.Subtitle,
			item.MediaContentID,
		})
	}
	return renderTable(out, data)
}

func printPick(out io.Writer, result core.PickResult) error {
	sel := result.Selection
	title := result.Title
	if title == "" {
		title = sel.MediaContentID
	}
	lines := [][2]string{
		{"Title", title},
		{"ID", sel.MediaContentID},
		{"Type", sel.MediaContentType},
		{"Provider", sel.MediaContentProvider},
		{"Thumbnail", sel.Thumbnail},
	}
	for _, line := range lines {
		if line[1] == "" {
			continue
		}
		if _, err := fmt.Fprintf(out, "%-10s %s\n", line[0]+":", line[1]); err != nil {
			return err
		}
	}
	if len(sel.MediaBrowserPath) > 0 {
		ids := make([]string, 0, len(sel.MediaBrowserPath))
		for _, d := range sel.MediaBrowserPath {
			ids = append(ids, d.ID)
		}
		if _, err := fmt.Fprintf(out, "%-10s %s\n", "Path:", strings.Join(ids, " > ")); err != nil {
			return err
		}
	}
	return nil
}

func printResolve(out io.Writer, result core.ResolveResult) error {
	_, err := fmt.Fprintf(out, "%s\t%s\n", result.Reply.URL, result.Reply.MimeType)
	return err
}

func printPath(out io.Writer, result core.PathResult) error {
	if !result.Found {
		_, err := fmt.Fprintln(out, "no remembered path")
		return err
	}
	data := pterm.TableData{{"DEPTH", "TYPE", "ID"}}
	for idx, d := range result.Path {
		data = append(data, []string{strconv.Itoa(idx), d.Type, d.ID})
	}
	return renderTable(out, data)
}

func renderTable(out io.Writer, data pterm.TableData) error {
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, rendered)
	return err
}
