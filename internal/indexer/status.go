// File: internal/indexer/status.go
package indexer

import (
	"sync/atomic"
)

// State is the orchestrator's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateScanning
	StatePersisting
	StateWatching
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateScanning:
		return "scanning"
	case StatePersisting:
		return "persisting"
	case StateWatching:
		return "watching"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Status is the shared observable handle consumed by UIs. All fields are
// atomic; the index itself is never shared. An optional signal callback
// fires after every update.
type Status struct {
	state         atomic.Int32
	indexing      atomic.Bool
	progress      atomic.Int32
	currentVolume atomic.Value // string
	volumeIndex   atomic.Int32
	totalVolumes  atomic.Int32
	count         atomic.Uint64
	message       atomic.Value // string

	// OnChange, when set before the orchestrator starts, is invoked
	// after each status update. It must not block.
	OnChange func()
}

// NewStatus creates a zeroed status handle.
func NewStatus() *Status {
	s := &Status{}
	s.currentVolume.Store("")
	s.message.Store("")
	return s
}

func (s *Status) signal() {
	if s.OnChange != nil {
		s.OnChange()
	}
}

// State returns the current orchestrator state.
func (s *Status) State() State { return State(s.state.Load()) }

func (s *Status) setState(st State) {
	s.state.Store(int32(st))
	s.indexing.Store(st == StateLoading || st == StateScanning || st == StatePersisting)
	s.signal()
}

// IsIndexing reports whether a load, scan, or persist is in flight.
func (s *Status) IsIndexing() bool { return s.indexing.Load() }

// Progress returns the 0-100 progress of the current phase.
func (s *Status) Progress() int { return int(s.progress.Load()) }

func (s *Status) setProgress(p int) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	s.progress.Store(int32(p))
	s.signal()
}

// CurrentVolume returns the mount being processed.
func (s *Status) CurrentVolume() string { return s.currentVolume.Load().(string) }

// VolumeIndex returns the 1-based index of the volume being processed.
func (s *Status) VolumeIndex() int { return int(s.volumeIndex.Load()) }

// TotalVolumes returns how many volumes the current operation covers.
func (s *Status) TotalVolumes() int { return int(s.totalVolumes.Load()) }

func (s *Status) setVolume(mount string, idx, total int) {
	s.currentVolume.Store(mount)
	s.volumeIndex.Store(int32(idx))
	s.totalVolumes.Store(int32(total))
	s.signal()
}

// IndexCount returns the live record count last published.
func (s *Status) IndexCount() uint64 { return s.count.Load() }

func (s *Status) setCount(n uint64) {
	s.count.Store(n)
	s.signal()
}

// Message returns the human-readable status line.
func (s *Status) Message() string { return s.message.Load().(string) }

func (s *Status) setMessage(msg string) {
	s.message.Store(msg)
	s.signal()
}
