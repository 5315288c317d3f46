package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// KindGateway is the presence kind of nodes that serve the media protocol.
const KindGateway = "gateway"

const playerPrefix = "media_player."

// Resolver resolves gateway and player selectors.
type Resolver struct {
	Presence ports.Broker
	Config   Config
}

// ResolveGateway resolves a gateway selector using config defaults.
func (r Resolver) ResolveGateway(ctx context.Context, selector string) (mp.Presence, error) {
	if selector == "" {
		selector = r.Config.Defaults.Gateway
	}
	presence, err := r.Presence.ListPresence(ctx)
	if err != nil {
		return mp.Presence{}, WrapError(ExitRuntime, "list presence", err)
	}

	filtered := make([]mp.Presence, 0, len(presence))
	for _, p := range presence {
		if p.Kind == KindGateway {
			filtered = append(filtered, p)
		}
	}
	if selector == "" {
		if len(filtered) == 1 {
			return filtered[0], nil
		}
		return mp.Presence{}, &CLIError{Code: ExitUsage, Msg: "gateway selector required"}
	}
	return resolveSelector(selector, filtered, r.Config.Aliases)
}

func resolveSelector(selector string, presence []mp.Presence, aliases map[string]string) (mp.Presence, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return mp.Presence{}, &CLIError{Code: ExitUsage, Msg: "selector required"}
	}
	if alias, ok := aliases[selector]; ok {
		selector = alias
	}
	if strings.HasPrefix(selector, "mp:") {
		for _, p := range presence {
			if p.NodeID == selector {
				return p, nil
			}
		}
		return mp.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("node not found: %s", selector)}
	}

	matches := make([]mp.Presence, 0)
	for _, p := range presence {
		if strings.EqualFold(p.Name, selector) || strings.EqualFold(p.NodeID, selector) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		candidates := make([]string, 0, len(presence))
		for _, p := range presence {
			candidates = append(candidates, p.Name)
		}
		return mp.Presence{}, notFound(selector, candidates)
	default:
		names := make([]string, 0, len(matches))
		for _, p := range matches {
			names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.NodeID))
		}
		sort.Strings(names)
		return mp.Presence{}, &CLIError{Code: ExitAmbiguous, Msg: fmt.Sprintf("ambiguous selector %q: %s", selector, strings.Join(names, ", "))}
	}
}

// ResolvePlayer resolves a player selector against the entity table. The
// selector may be an entity id, the part after "media_player.", a friendly
// name or an alias.
func (r Resolver) ResolvePlayer(dir players.Directory, selector string) (string, error) {
	if selector == "" {
		selector = r.Config.Defaults.Player
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return "", &CLIError{Code: ExitUsage, Msg: "player selector required"}
	}
	if alias, ok := r.Config.Aliases[selector]; ok {
		selector = alias
	}
	if _, ok := dir.Player(selector); ok {
		return selector, nil
	}
	if _, ok := dir.Player(playerPrefix + selector); ok {
		return playerPrefix + selector, nil
	}

	var matches []string
	var names []string
	for _, state := range dir.Players() {
		name := dir.Name(state.EntityID)
		names = append(names, name)
		if strings.EqualFold(name, selector) {
			matches = append(matches, state.EntityID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		ids := make([]string, 0, len(names))
		for _, state := range dir.Players() {
			ids = append(ids, state.EntityID)
		}
		return "", notFound(selector, append(names, ids...))
	default:
		return "", &CLIError{Code: ExitAmbiguous, Msg: fmt.Sprintf("ambiguous player %q: %s", selector, strings.Join(matches, ", "))}
	}
}

// notFound builds a not-found error with up to three close candidates.
func notFound(selector string, candidates []string) *CLIError {
	msg := fmt.Sprintf("no match for %q", selector)
	ranks := fuzzy.RankFindNormalizedFold(selector, candidates)
	sort.Sort(ranks)
	var suggestions []string
	seen := map[string]struct{}{}
	for _, rank := range ranks {
		if _, ok := seen[rank.Target]; ok {
			continue
		}
		seen[rank.Target] = struct{}{}
		suggestions = append(suggestions, rank.Target)
		if len(suggestions) == 3 {
			break
		}
	}
	if len(suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
	}
	return &CLIError{Code: ExitNotFound, Msg: msg}
}
