// Package tui draws snapshots as a live terminal table with Bubble Tea.
package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

const closeTimeout = 2 * time.Second

// Presenter owns a Bubble Tea program. Render never blocks: snapshots go
// through a one-slot mailbox that keeps only the newest, and a pump
// goroutine forwards them to the program.
type Presenter struct {
	program *tea.Program
	mailbox chan snapshot.Snapshot

	started  bool
	done     chan struct{}
	stop     chan struct{}
	pumpDone chan struct{}

	mu     sync.Mutex
	runErr error

	closeOnce sync.Once
	closeErr  error
}

// New builds the presenter. The program uses the alternate screen and
// leaves signal handling to the caller unless opts say otherwise.
func New(onQuit func(), opts ...tea.ProgramOption) *Presenter {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithoutSignalHandler()}, opts...)
	return &Presenter{
		program:  tea.NewProgram(NewModel(onQuit), opts...),
		mailbox:  make(chan snapshot.Snapshot, 1),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Start runs the program in the background. It must be called at most once.
func (p *Presenter) Start() {
	p.started = true
	go func() {
		defer close(p.done)
		if _, err := p.program.Run(); err != nil {
			p.mu.Lock()
			p.runErr = err
			p.mu.Unlock()
		}
	}()
	go p.pump()
}

func (p *Presenter) pump() {
	defer close(p.pumpDone)
	for {
		select {
		case <-p.stop:
			return
		case <-p.done:
			return
		case s := <-p.mailbox:
			p.deliver(s)
		}
	}
}

// deliver hands s to the program unless the program has already exited.
func (p *Presenter) deliver(s snapshot.Snapshot) {
	sent := make(chan struct{})
	go func() {
		p.program.Send(snapshotMsg(s))
		close(sent)
	}()
	select {
	case <-sent:
	case <-p.done:
	}
}

// Render replaces any snapshot still waiting in the mailbox.
func (p *Presenter) Render(s snapshot.Snapshot) {
	select {
	case <-p.mailbox:
	default:
	}
	select {
	case p.mailbox <- s:
	default:
	}
}

// Close flushes the last pending snapshot, stops the program and restores
// the terminal. Later calls return the first result.
func (p *Presenter) Close() error {
	p.closeOnce.Do(func() {
		if !p.started {
			return
		}
		close(p.stop)
		<-p.pumpDone

		select {
		case s := <-p.mailbox:
			p.deliver(s)
		default:
		}

		p.program.Quit()
		select {
		case <-p.done:
		case <-time.After(closeTimeout):
			p.program.Kill()
			<-p.done
		}

		p.mu.Lock()
		p.closeErr = p.runErr
		p.mu.Unlock()
	})
	return p.closeErr
}
