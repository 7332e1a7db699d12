// Package events carries progress and stage notifications from every soar
// operation to a pluggable sink. Emission is fire-and-forget: a slow or
// full sink drops events rather than blocking producers.
package events

import (
	"sync"
	"sync/atomic"
)

// OperationID tags every event a single top-level user action produces.
type OperationID uint64

var opCounter atomic.Uint64

// NextOperationID allocates a fresh operation id from a process-wide
// monotonic counter.
func NextOperationID() OperationID {
	return OperationID(opCounter.Add(1))
}

// Kind discriminates Event payloads.
type Kind int

const (
	DownloadStarting Kind = iota
	DownloadResuming
	DownloadProgress
	DownloadComplete
	DownloadRetry
	DownloadAborted
	DownloadRecovered
	Verifying
	Installing
	Removing
	Syncing
	UpdateCheck
	UpdateCleanup
	HookRunning
	Running
	OperationComplete
	OperationFailed
	BatchProgress
	Log
)

// Verify stages.
const (
	VerifyChecksum  = "checksum"
	VerifySignature = "signature"
	VerifyPassed    = "passed"
	VerifyFailed    = "failed"
)

// Install stages.
const (
	StageExtracting         = "extracting"
	StageExtractingNested   = "extracting-nested"
	StageLinkingBinaries    = "linking-binaries"
	StageDesktopIntegration = "desktop-integration"
	StageSetupPortable      = "setup-portable"
	StageRecordingDatabase  = "recording-database"
	StageComplete           = "complete"
)

// Remove stages.
const (
	StageUnlinkingBinaries = "unlinking-binaries"
	StageUnlinkingDesktop  = "unlinking-desktop"
	StageUnlinkingIcons    = "unlinking-icons"
	StageRemovingDirectory = "removing-directory"
	StageCleaningDatabase  = "cleaning-database"
)

// Sync stages.
const (
	StageFetching        = "fetching"
	StageUpToDate        = "up-to-date"
	StageDecompressing   = "decompressing"
	StageValidating      = "validating"
	StageWritingDatabase = "writing-database"
)

// Event is the single algebraic event type. Fields beyond Kind are
// populated per kind; zero values mean "not applicable".
type Event struct {
	Kind    Kind
	OpID    OperationID
	PkgName string
	PkgID   string
	Repo    string
	Stage   string
	Current uint64
	Total   uint64
	Count   int // package count (sync), batch totals
	Message string
	Err     error
}

// Sink consumes events. Implementations must be cheap; Emit is called on
// the producing goroutine.
type Sink interface {
	Emit(Event)
}

// Bus fans events out to one sink. The zero Bus discards everything.
type Bus struct {
	sink Sink
}

func NewBus(sink Sink) *Bus { return &Bus{sink: sink} }

func (b *Bus) Emit(ev Event) {
	if b == nil || b.sink == nil {
		return
	}
	b.sink.Emit(ev)
}

// Logf emits a Log event.
func (b *Bus) Logf(msg string) {
	b.Emit(Event{Kind: Log, Message: msg})
}

// Discard is a no-op sink.
type Discard struct{}

func (Discard) Emit(Event) {}

// ChannelSink forwards events into a bounded channel, dropping when full.
type ChannelSink struct {
	C chan Event
}

func NewChannelSink(depth int) *ChannelSink {
	return &ChannelSink{C: make(chan Event, depth)}
}

func (s *ChannelSink) Emit(ev Event) {
	select {
	case s.C <- ev:
	default:
	}
}

// Collector records events in memory, for tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Emit(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a snapshot of everything emitted so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}
