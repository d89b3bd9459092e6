package domain

import (
	"errors"
	"sync"
)

var (
	// ErrActivityNotFound is returned when no activity matches the requested name.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrAlreadyRegistered is returned when the email is already on the roster.
	ErrAlreadyRegistered = errors.New("student is already signed up")
	// ErrNotRegistered is returned when unregistering an email that is not on the roster.
	ErrNotRegistered = errors.New("student is not signed up for this activity")
)

// Activity represents an extracurricular offering and its roster.
type Activity struct {
	Name            string
	Description     string
	Schedule        string
	MaxParticipants int
	Participants    []string
}

func (a Activity) clone() Activity {
	a.Participants = append([]string(nil), a.Participants...)
	return a
}

func (a Activity) indexOf(email string) int {
	for i, p := range a.Participants {
		if p == email {
			return i
		}
	}
	return -1
}

// Change describes a roster after an accepted mutation. Version increases by
// one with every accepted change to the same activity, so consumers can order
// changes that were published out of order.
type Change struct {
	Count   int
	Version uint64
}

// Directory is the in-memory store of activities keyed by exact name.
// The set of names is fixed at construction; only rosters change.
type Directory struct {
	mu         sync.RWMutex
	activities map[string]*Activity
	versions   map[string]uint64
}

// NewDirectory seeds a Directory. Later entries win on duplicate names.
func NewDirectory(seed []Activity) *Directory {
	d := &Directory{
		activities: make(map[string]*Activity, len(seed)),
		versions:   make(map[string]uint64, len(seed)),
	}
	for _, activity := range seed {
		cp := activity.clone()
		d.activities[cp.Name] = &cp
	}
	return d
}

// List returns a copy of every activity keyed by name.
func (d *Directory) List() map[string]Activity {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Activity, len(d.activities))
	for name, activity := range d.activities {
		out[name] = activity.clone()
	}
	return out
}

// Signup appends email to the roster of the named activity. Capacity is not
// checked.
func (d *Directory) Signup(name, email string) (Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	activity, ok := d.activities[name]
	if !ok {
		return Change{}, ErrActivityNotFound
	}
	if activity.indexOf(email) >= 0 {
		return Change{}, ErrAlreadyRegistered
	}
	activity.Participants = append(activity.Participants, email)
	return d.bump(name, len(activity.Participants)), nil
}

// Unregister removes email from the roster of the named activity.
func (d *Directory) Unregister(name, email string) (Change, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	activity, ok := d.activities[name]
	if !ok {
		return Change{}, ErrActivityNotFound
	}
	idx := activity.indexOf(email)
	if idx < 0 {
		return Change{}, ErrNotRegistered
	}
	activity.Participants = append(activity.Participants[:idx], activity.Participants[idx+1:]...)
	return d.bump(name, len(activity.Participants)), nil
}

// bump must be called with mu held.
func (d *Directory) bump(name string, count int) Change {
	d.versions[name]++
	return Change{Count: count, Version: d.versions[name]}
}
