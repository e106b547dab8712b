// Package presenter defines the boundary between the monitor and whatever
// draws its snapshots.
package presenter

import (
	"errors"
	"sync"

	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

// Presenter draws snapshots. Render must return quickly; Close restores
// whatever the presenter took over and is safe to call more than once.
type Presenter interface {
	Render(snapshot.Snapshot)
	Close() error
}

// Multi fans every snapshot out to several presenters.
type Multi struct {
	presenters []Presenter
	once       sync.Once
	err        error
}

func NewMulti(ps ...Presenter) *Multi {
	return &Multi{presenters: ps}
}

func (m *Multi) Render(s snapshot.Snapshot) {
	for _, p := range m.presenters {
		p.Render(s)
	}
}

// Close closes every presenter in reverse order and joins their errors.
func (m *Multi) Close() error {
	m.once.Do(func() {
		var errs []error
		for i := len(m.presenters) - 1; i >= 0; i-- {
			if err := m.presenters[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		m.err = errors.Join(errs...)
	})
	return m.err
}
