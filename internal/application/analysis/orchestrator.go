package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/estate-compliance/internal/application"
	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
)

// Phase of the analysis panel
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseFailed  Phase = "failed"
)

// Source tells where a loaded record came from
type Source string

const (
	SourceCache      Source = "cache"
	SourceNetwork    Source = "network"
	SourceStaleCache Source = "stale-cache"
)

const (
	UnavailableMessage = "analysis unavailable"
	BusyMessage        = "this can take a while"

	subscriberBuffer = 8
)

// State is a snapshot of the orchestrator, safe to hand out.
type State struct {
	Phase        Phase                `json:"phase"`
	SubjectID    compliance.SubjectID `json:"subject_id,omitempty"`
	Generation   uint64               `json:"generation"`
	Record       *compliance.Record   `json:"record,omitempty"`
	Source       Source               `json:"source,omitempty"`
	BusyMessage  string               `json:"busy_message,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	Err          error                `json:"-"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Cache port used by the orchestrator. A non-nil error is treated as a miss.
// Probe removes an expired entry from storage and returns it as expired.
type Cache interface {
	Probe(ctx context.Context, id compliance.SubjectID) (fresh, expired *compliance.CacheEntry, err error)
	GetStale(ctx context.Context, id compliance.SubjectID) (*compliance.CacheEntry, error)
	Put(ctx context.Context, id compliance.SubjectID, rec *compliance.Record) error
	Invalidate(ctx context.Context, id compliance.SubjectID) error
}

// Recorder receives load metrics
type Recorder interface {
	CacheLookup(result string)
	LoadFinished(outcome string)
	StaleDiscarded()
}

// Orchestrator drives one compliance-analysis panel. Select never blocks on I/O:
// loads run in their own goroutine and every result is committed only if the
// token captured at the start of the load is still current.
//
// Buildings and Cache are optional.
type Orchestrator struct {
	Buildings compliance.BuildingFetcher
	Analyses  compliance.AnalysisFetcher
	Cache     Cache
	Clock     application.Clock
	Log       *zap.Logger
	Metrics   Recorder

	mu       sync.Mutex
	identity Identity
	state    State
	cancel   context.CancelFunc
	closed   bool
	subs     map[int]chan State
	nextSub  int
	inflight sync.WaitGroup
}

// Select makes id the current subject, resets the state and starts loading.
// An empty id only resets the panel to idle.
func (o *Orchestrator) Select(id compliance.SubjectID) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return o.state
	}

	tok := o.identity.Set(id)
	if o.cancel != nil {
		// optimization only, stale loads are dropped by the token check anyway
		o.cancel()
		o.cancel = nil
	}
	o.state = State{
		Phase:      PhaseIdle,
		SubjectID:  id,
		Generation: tok.Generation,
		UpdatedAt:  o.now(),
	}
	if id == "" {
		o.publishLocked()
		return o.state
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.state.Phase = PhaseLoading
	o.state.BusyMessage = BusyMessage
	o.publishLocked()

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer cancel()
		o.load(ctx, tok)
	}()
	return o.state
}

// Retry selects the current subject again.
func (o *Orchestrator) Retry() State {
	id := o.identity.Current().SubjectID
	if id == "" {
		return o.State()
	}
	return o.Select(id)
}

// Refresh drops the cached analysis of the current subject and loads it again.
func (o *Orchestrator) Refresh(ctx context.Context) State {
	id := o.identity.Current().SubjectID
	if id == "" {
		return o.State()
	}
	if o.Cache != nil {
		if err := o.Cache.Invalidate(ctx, id); err != nil {
			o.logger().Warn("invalidate before refresh", zap.String("subject", string(id)), zap.Error(err))
		}
	}
	return o.Select(id)
}

// State returns the current snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe returns a channel of state snapshots and a func to stop receiving.
// Snapshots are dropped for a subscriber whose buffer is full; State stays authoritative.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan State, subscriberBuffer)
	if o.closed {
		close(ch)
		return ch, func() {}
	}
	if o.subs == nil {
		o.subs = map[int]chan State{}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
}

// Wait blocks until every load started so far has returned.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Close cancels in-flight work; later results and selections are ignored.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	for id, c := range o.subs {
		close(c)
		delete(o.subs, id)
	}
}

func (o *Orchestrator) load(ctx context.Context, tok Token) {
	log := o.logger().With(zap.String("subject", string(tok.SubjectID)), zap.Uint64("generation", tok.Generation))

	entry, expired := o.probe(ctx, tok.SubjectID, log)
	if entry != nil {
		o.recorder().CacheLookup("hit")
		o.finish(tok, log, func(s *State) {
			s.Phase = PhaseLoaded
			s.Record = entry.Record
			s.Source = SourceCache
		})
		return
	}
	o.recorder().CacheLookup("miss")

	if o.Buildings != nil {
		b, err := o.Buildings.FetchBuilding(ctx, tok.SubjectID)
		if !o.isCurrent(tok) {
			o.discard(log, "building lookup")
			return
		}
		if err != nil {
			o.fail(tok, log, fmt.Errorf("%w: %w", compliance.ErrBuildingUnavailable, err))
			return
		}
		ctx = compliance.WithBuilding(ctx, b)
	}

	log.Debug("fetching analysis")
	payload, err := o.Analyses.FetchAnalysis(ctx, tok.SubjectID)
	if !o.isCurrent(tok) {
		o.discard(log, "analysis fetch")
		return
	}
	if err != nil {
		o.fallback(ctx, tok, log, expired, networkError(err))
		return
	}

	raw, err := compliance.Normalize(payload)
	if err != nil {
		o.fail(tok, log, err)
		return
	}
	rec, err := compliance.Map(raw)
	if err != nil {
		o.fail(tok, log, err)
		return
	}

	if !o.isCurrent(tok) {
		o.discard(log, "mapping")
		return
	}
	if o.Cache != nil {
		if err := o.Cache.Put(ctx, tok.SubjectID, rec); err != nil {
			log.Warn("cache write-through failed", zap.Error(err))
		}
	}
	o.finish(tok, log, func(s *State) {
		s.Phase = PhaseLoaded
		s.Record = rec
		s.Source = SourceNetwork
	})
}

// fallback serves a logically expired entry when the network failed: the one
// the probe removed, else whatever the store still holds.
func (o *Orchestrator) fallback(ctx context.Context, tok Token, log *zap.Logger, expired *compliance.CacheEntry, cause error) {
	entry := expired
	if (entry == nil || entry.Record == nil) && o.Cache != nil {
		var err error
		entry, err = o.Cache.GetStale(ctx, tok.SubjectID)
		if err != nil {
			log.Warn("stale cache read failed", zap.Error(err))
			entry = nil
		}
	}
	if entry != nil && entry.Record != nil {
		o.recorder().CacheLookup("stale")
		log.Info("serving stale analysis after network failure", zap.Error(cause), zap.Time("stored_at", entry.StoredAt))
		o.finish(tok, log, func(s *State) {
			s.Phase = PhaseLoaded
			s.Record = entry.Record
			s.Source = SourceStaleCache
		})
		return
	}
	o.fail(tok, log, cause)
}

func (o *Orchestrator) fail(tok Token, log *zap.Logger, cause error) {
	if o.finish(tok, log, func(s *State) {
		s.Phase = PhaseFailed
		s.ErrorMessage = UnavailableMessage
		s.Reason = cause.Error()
		s.Err = cause
	}) {
		log.Warn("analysis load failed", zap.Error(cause))
	}
}

// finish commits a terminal state if tok is still current.
func (o *Orchestrator) finish(tok Token, log *zap.Logger, apply func(*State)) bool {
	o.mu.Lock()
	if o.closed || !o.identity.Current().Matches(tok) {
		o.mu.Unlock()
		o.discard(log, "commit")
		return false
	}
	apply(&o.state)
	o.state.BusyMessage = ""
	o.state.UpdatedAt = o.now()
	phase := o.state.Phase
	o.publishLocked()
	o.mu.Unlock()

	o.recorder().LoadFinished(string(phase))
	return true
}

func (o *Orchestrator) probe(ctx context.Context, id compliance.SubjectID, log *zap.Logger) (fresh, expired *compliance.CacheEntry) {
	if o.Cache == nil {
		return nil, nil
	}
	fresh, expired, err := o.Cache.Probe(ctx, id)
	if err != nil {
		log.Warn("cache probe failed, treating as miss", zap.Error(err))
		return nil, nil
	}
	if fresh != nil && fresh.Record == nil {
		fresh = nil
	}
	return fresh, expired
}

func (o *Orchestrator) isCurrent(tok Token) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && o.identity.Current().Matches(tok)
}

// discard drops the result of a superseded load. Expected under rapid switching, not a failure.
func (o *Orchestrator) discard(log *zap.Logger, at string) {
	o.recorder().StaleDiscarded()
	log.Debug("stale load discarded", zap.String("at", at))
}

func (o *Orchestrator) publishLocked() {
	for _, c := range o.subs {
		select {
		case c <- o.state:
		default:
		}
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return time.Now()
	}
	return o.Clock.Now()
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

func (o *Orchestrator) recorder() Recorder {
	if o.Metrics == nil {
		return nopRecorder{}
	}
	return o.Metrics
}

func networkError(err error) error {
	if errors.Is(err, compliance.ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %w", compliance.ErrNetwork, err)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string)  {}
func (nopRecorder) LoadFinished(string) {}
func (nopRecorder) StaleDiscarded()     {}
