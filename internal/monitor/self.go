package monitor

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/pgbouncer-lab/liveload/internal/snapshot"
)

const selfSampleInterval = time.Second

// selfStats samples the simulator's own CPU and memory. Sampling reads
// procfs, so results are cached between renders.
type selfStats struct {
	mu      sync.Mutex
	proc    *process.Process
	last    snapshot.Process
	sampled time.Time
}

func newSelfStats() *selfStats {
	s := &selfStats{}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	}
	return s
}

func (s *selfStats) sample(now time.Time) snapshot.Process {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last.Goroutines = runtime.NumGoroutine()
	if s.proc == nil || now.Sub(s.sampled) < selfSampleInterval {
		return s.last
	}
	s.sampled = now
	if pct, err := s.proc.Percent(0); err == nil {
		s.last.CPUPercent = pct
	}
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		s.last.RSSBytes = mem.RSS
	}
	return s.last
}
