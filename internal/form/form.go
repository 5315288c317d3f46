package form

import (
	"strings"
	"sync"

	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Origin tags who caused a form change.
type Origin string

const (
	// OriginUser marks changes made by picking or typing.
	OriginUser Origin = "user"
	// OriginMerge marks changes written back by metadata resolvers.
	OriginMerge Origin = "merge"
)

// State is the sound selection and its display title.
type State struct {
	Selection mp.Selection
	Title     string
}

func (s State) clone() State {
	return State{Selection: s.Selection.Clone(), Title: s.Title}
}

// Change is delivered to subscribers after every update.
type Change struct {
	State
	Origin Origin
	Item   *mp.MediaItem
}

// Listener receives form changes. It runs on the goroutine that made the
// change.
type Listener func(Change)

// Form holds the sound selection of the alarm being edited.
type Form struct {
	mu        sync.Mutex
	state     State
	listeners []Listener
}

// New returns an empty form.
func New() *Form {
	return &Form{}
}

// Subscribe registers fn for every future change.
func (f *Form) Subscribe(fn Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// State returns a copy of the current state.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// Update replaces the state. item is the browse item the selection came
// from, if any.
func (f *Form) Update(state State, origin Origin, item *mp.MediaItem) {
	f.mu.Lock()
	f.state = state.clone()
	change := Change{State: f.state.clone(), Origin: origin, Item: item}
	listeners := append([]Listener(nil), f.listeners...)
	f.mu.Unlock()

	f.notify(listeners, change)
}

// Apply runs fn against the current state if the selection id still equals
// targetID and stores the result with origin. A mismatch returns a
// stale_result error and leaves the form untouched. fn reports whether it
// changed anything.
func (f *Form) Apply(targetID string, origin Origin, fn func(State) (State, bool)) error {
	f.mu.Lock()
	current := strings.TrimSpace(f.state.Selection.MediaContentID)
	target := strings.TrimSpace(targetID)
	if target == "" || current != target {
		f.mu.Unlock()
		return media.Errorf(media.KindStale, "selection moved from %q to %q", target, current)
	}
	next, changed := fn(f.state.clone())
	if !changed {
		f.mu.Unlock()
		return nil
	}
	f.state = next.clone()
	change := Change{State: f.state.clone(), Origin: origin}
	listeners := append([]Listener(nil), f.listeners...)
	f.mu.Unlock()

	f.notify(listeners, change)
	return nil
}

func (f *Form) notify(listeners []Listener, change Change) {
	for _, fn := range listeners {
		fn(change)
	}
}
