package rollsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/outrunlabs/rollsync/pkg/rollsync/event"
	"github.com/outrunlabs/rollsync/pkg/rollsync/observability"
	"github.com/outrunlabs/rollsync/pkg/rollsync/registry"
	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
	"github.com/outrunlabs/rollsync/pkg/rollsync/snapshot"
)

// eventSource marks driver-published events.
const eventSource = "rollsync.driver"

// Stats is a point-in-time view of driver progress. Frame and rollback
// figures come from the session; tick and snapshot counters are the
// driver's own and survive Restart.
type Stats struct {
	// Ticks counts RunTick calls that got past the terminal-status check.
	Ticks uint64

	// Saves counts snapshots captured and stored.
	Saves uint64

	// Loads counts snapshots restored by rollbacks.
	Loads uint64

	// CurrentFrame is the last simulated frame.
	CurrentFrame session.Frame

	// ConfirmedFrame is the newest frame simulated from confirmed inputs
	// only.
	ConfirmedFrame session.Frame

	// Rollbacks counts rewind-and-resimulate episodes.
	Rollbacks uint64

	// LastRollbackDepth is the number of frames resimulated by the most
	// recent rollback.
	LastRollbackDepth int

	// Stalls counts ticks that could not advance because the prediction
	// window was exhausted.
	Stalls uint64
}

// Driver runs a game simulation against a session's action stream. Each
// RunTick collects local inputs, offers them to the session, and executes
// the returned batch: advancing the host simulation, saving snapshots, and
// restoring them when a rollback rewinds mispredicted frames.
//
// The driver is owned by a single goroutine, conventionally the host's
// simulation loop. None of its methods are safe for concurrent use; the
// event bus is the intended cross-goroutine surface.
type Driver struct {
	sess      session.Session
	reg       *registry.Registry
	collector InputCollector
	advance   AdvanceFunc
	store     *snapshot.Store

	cfg    driverConfig
	logger *slog.Logger
	runID  string
	kind   string

	status        Status
	lastSimulated session.Frame
	ticks         uint64
	saves         uint64
	loads         uint64
	startedAt     time.Time

	// closers holds stores opened by BuildDriver on the driver's behalf.
	closers []io.Closer
}

// NewDriver creates a driver for the session. The registry holds the host's
// state categories; it is sealed on the first tick, so every Register call
// must happen before then. collector and advance are the host hooks invoked
// during ticks.
func NewDriver(sess session.Session, reg *registry.Registry, collector InputCollector, advance AdvanceFunc, opts ...Option) (*Driver, error) {
	if sess == nil {
		return nil, ErrNilSession
	}
	if reg == nil {
		return nil, ErrNilRegistry
	}
	if collector == nil {
		return nil, ErrNilCollector
	}
	if advance == nil {
		return nil, ErrNilAdvance
	}

	cfg := defaultDriverConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	runID := cfg.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	store, err := snapshot.NewStore(storeCapacity(sess, cfg.snapshotMargin))
	if err != nil {
		return nil, err
	}

	kind := sessionKind(sess)
	d := &Driver{
		sess:      sess,
		reg:       reg,
		collector: collector,
		advance:   advance,
		store:     store,
		cfg:       cfg,
		logger:    observability.EnrichLogger(cfg.logger, runID, kind),
		runID:     runID,
		kind:      kind,
		status:    StatusIdle,
		startedAt: time.Now(),
	}
	observability.LogRunStart(d.logger, runID, sess.NumPlayers(), sess.InputBytes())
	return d, nil
}

// RunTick runs one simulation tick: collect local inputs, advance the
// session, execute the resulting action batch, then surface session events.
//
// The context carries trace and log correlation only; execution never blocks
// on it mid-batch, because abandoning a half-executed batch would leave the
// host state inconsistent with the session's bookkeeping.
//
// An InputError fails only the current tick; the driver returns to idle and
// the next tick collects inputs again for the same frame. Every other error
// is terminal: the driver moves to a terminal status and later ticks return
// ErrDisconnected, ErrDesynced, or ErrDriverClosed without touching state.
func (d *Driver) RunTick(ctx context.Context) (tickErr error) {
	switch d.status {
	case StatusClosed:
		return ErrDriverClosed
	case StatusDisconnected:
		return ErrDisconnected
	case StatusDesynced:
		return ErrDesynced
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.ticks++
	startTime := time.Now()
	target := d.lastSimulated + 1

	tickCtx := ctx
	if d.cfg.tracingEnabled {
		var tickSpan trace.Span
		tickCtx, tickSpan = d.cfg.spans.StartTickSpan(ctx, d.runID, int64(target))
		defer func() {
			d.cfg.spans.EndSpanWithError(tickSpan, tickErr)
		}()
	}
	defer func() {
		d.cfg.metrics.RecordTick(ctx, d.kind, time.Since(startTime), tickErr)
	}()

	d.status = StatusCollecting
	d.reg.Seal()
	locals, err := d.collect()
	if err != nil {
		d.status = StatusIdle
		return err
	}

	d.status = StatusSyncing
	prevStats := d.sess.Stats()
	actions, err := d.sess.Advance(locals)
	if err != nil {
		return d.fail(tickCtx, &SessionError{Op: "advance", Err: err})
	}

	d.status = StatusExecuting
	prevSimulated := d.lastSimulated
	loadFrame := session.NullFrame
	advanced := 0
	for _, act := range actions {
		if err := d.executeAction(tickCtx, act); err != nil {
			return d.fail(tickCtx, err)
		}
		switch act.Kind {
		case session.ActionLoad:
			loadFrame = act.Frame
		case session.ActionAdvance, session.ActionAdvanceAndSave:
			advanced++
		}
	}
	if advanced > 0 {
		d.cfg.metrics.RecordAdvance(ctx, advanced)
	}
	if loadFrame != session.NullFrame {
		d.noteRollback(ctx, loadFrame, prevSimulated, startTime)
	}

	stats := d.sess.Stats()
	if stats.Stalls > prevStats.Stalls {
		d.noteStall(ctx, stats.ConfirmedFrame)
	}

	d.drainEvents(ctx)
	if !d.status.Terminal() {
		d.status = StatusIdle
	}
	return nil
}

// collect gathers one input per local handle.
func (d *Driver) collect() (map[session.PlayerHandle]session.Input, error) {
	handles := d.sess.LocalHandles()
	locals := make(map[session.PlayerHandle]session.Input, len(handles))
	for _, h := range handles {
		in, err := d.collector(h)
		if err != nil {
			return nil, &InputError{Player: h, Err: err}
		}
		if len(in) != d.sess.InputBytes() {
			return nil, &InputError{
				Player: h,
				Err:    fmt.Errorf("got %d input bytes, want %d: %w", len(in), d.sess.InputBytes(), session.ErrInputSize),
			}
		}
		locals[h] = in
	}
	return locals, nil
}

// executeAction runs one action of a batch.
func (d *Driver) executeAction(ctx context.Context, act session.Action) (actErr error) {
	if d.cfg.tracingEnabled {
		var span trace.Span
		ctx, span = d.cfg.spans.StartActionSpan(ctx, act.Kind.String(), int64(act.Frame))
		defer func() {
			d.cfg.spans.EndSpanWithError(span, actErr)
		}()
	}

	switch act.Kind {
	case session.ActionSave:
		_, _, err := d.save(ctx, act.Frame)
		return err
	case session.ActionLoad:
		return d.load(ctx, act.Frame)
	case session.ActionAdvance:
		return d.step(ctx, act, false)
	case session.ActionAdvanceAndSave:
		return d.step(ctx, act, true)
	default:
		return &SessionError{Op: "advance", Err: fmt.Errorf("unknown action kind %d", act.Kind)}
	}
}

// save captures the registered state, checksums it, stores the snapshot, and
// reports the checksum back to the session. It returns the checksum and
// whether checksumming is enabled.
func (d *Driver) save(ctx context.Context, frame session.Frame) (uint64, bool, error) {
	blobs, err := d.reg.CaptureAll()
	if err != nil {
		return 0, false, d.stateError("capture", err)
	}

	snap := snapshot.Snapshot{Frame: frame, Blobs: blobs, CapturedAt: time.Now()}
	hasSum := d.cfg.checksum != nil
	if hasSum {
		snap.Checksum = d.cfg.checksum.Sum(blobs)
	}

	if err := d.store.Save(snap); err != nil {
		observability.LogSnapshotError(d.logger, int64(frame), "save", err)
		return 0, false, &SnapshotError{Frame: frame, Op: "save", Err: err}
	}
	d.saves++
	size := snap.Size()
	d.cfg.metrics.RecordSnapshot(ctx, "save", int64(size))
	observability.LogSnapshot(d.logger, int64(frame), size)

	if hasSum {
		d.sess.ReportChecksum(frame, snap.Checksum)
	}
	return snap.Checksum, hasSum, nil
}

// load restores the snapshot for the frame into the registered state.
func (d *Driver) load(ctx context.Context, frame session.Frame) error {
	snap, err := d.store.Load(frame)
	if err != nil {
		observability.LogSnapshotError(d.logger, int64(frame), "load", err)
		return &SnapshotError{Frame: frame, Op: "load", Err: err}
	}
	if err := d.reg.RestoreAll(snap.Blobs); err != nil {
		return d.stateError("restore", err)
	}
	d.loads++
	d.lastSimulated = frame
	d.cfg.metrics.RecordSnapshot(ctx, "load", int64(snap.Size()))
	return nil
}

// step advances the host simulation one frame, optionally saving the result,
// and records the frame to the replay store.
func (d *Driver) step(ctx context.Context, act session.Action, save bool) error {
	if err := d.advance(act.Frame, act.Inputs); err != nil {
		return &AdvanceError{Frame: act.Frame, Err: err}
	}
	d.lastSimulated = act.Frame

	var sum uint64
	hasSum := false
	if save {
		var err error
		sum, hasSum, err = d.save(ctx, act.Frame)
		if err != nil {
			return err
		}
	}

	if d.cfg.recorder != nil {
		if err := d.cfg.recorder.Record(act.Frame, act.Inputs, sum, hasSum); err != nil {
			observability.LogReplayError(d.logger, int64(act.Frame), err)
		}
	}
	return nil
}

// stateError wraps a registry failure, lifting out the failing category.
func (d *Driver) stateError(op string, err error) error {
	stateErr := &StateError{Op: op, Err: err}
	var catErr *registry.CategoryError
	if errors.As(err, &catErr) {
		stateErr.Category = catErr.Name
	}
	return stateErr
}

// fail ends a tick terminally. Session events that accumulated before the
// failure are still surfaced; a pending desync outranks the disconnect.
func (d *Driver) fail(ctx context.Context, err error) error {
	d.drainEvents(ctx)
	if !d.status.Terminal() {
		d.status = StatusDisconnected
	}
	observability.LogRunError(d.logger, d.runID, err, int64(d.lastSimulated))
	return err
}

// noteRollback surfaces a batch that rewound and resimulated frames.
func (d *Driver) noteRollback(ctx context.Context, loadFrame, prevSimulated session.Frame, startTime time.Time) {
	resimFrom := loadFrame + 1
	target := d.lastSimulated
	depth := int(prevSimulated - loadFrame)

	d.cfg.metrics.RecordRollback(ctx, depth)
	observability.LogRollback(d.logger, int64(resimFrom), int64(target), float64(time.Since(startTime).Milliseconds()))
	d.publish(ctx, event.New(event.TypeRollback, eventSource, d.runID, event.RollbackData{
		ResimFrom: int64(resimFrom),
		Target:    int64(target),
		Depth:     depth,
	}, event.WithFrame(int64(target))))
}

// noteStall surfaces a tick that could not advance.
func (d *Driver) noteStall(ctx context.Context, confirmed session.Frame) {
	d.cfg.metrics.RecordStall(ctx)
	observability.LogStall(d.logger, int64(confirmed))
	d.publish(ctx, event.New(event.TypeStall, eventSource, d.runID, event.StallData{
		Confirmed: int64(confirmed),
	}, event.WithFrame(int64(d.lastSimulated))))
}

// drainEvents converts pending session events into bus notifications. Desync
// and peer loss flip the driver into their terminal statuses.
func (d *Driver) drainEvents(ctx context.Context) {
	for _, evt := range d.sess.Events() {
		switch evt.Kind {
		case session.EventSynchronized:
			observability.LogSynchronized(d.logger, int64(evt.Frame))
			d.publish(ctx, event.New(event.TypeSynchronized, eventSource, d.runID, event.SynchronizedData{
				Players: d.sess.NumPlayers(),
			}, frameOptions(evt.Frame)...))

		case session.EventDesync:
			observability.LogDesync(d.logger, int64(evt.Frame), int(evt.Player), evt.LocalChecksum, evt.RemoteChecksum)
			d.publish(ctx, event.New(event.TypeDesync, eventSource, d.runID, event.DesyncData{
				Player:         int(evt.Player),
				LocalChecksum:  evt.LocalChecksum,
				RemoteChecksum: evt.RemoteChecksum,
			}, frameOptions(evt.Frame)...))
			d.status = StatusDesynced

		case session.EventPeerDisconnected:
			observability.LogPeerDisconnected(d.logger, int(evt.Player), evt.Err)
			reason := ""
			if evt.Err != nil {
				reason = evt.Err.Error()
			}
			d.publish(ctx, event.New(event.TypePeerDisconnected, eventSource, d.runID, event.PeerDisconnectedData{
				Player: int(evt.Player),
				Reason: reason,
			}, frameOptions(evt.Frame)...))
			d.status = StatusDisconnected
		}
	}
}

// publish delivers an event to the host's bus, when one is attached. Publish
// failures are dropped: a closed or saturated bus must not stop the
// simulation.
func (d *Driver) publish(ctx context.Context, evt event.Event) {
	if d.cfg.bus == nil {
		return
	}
	_ = d.cfg.bus.Publish(ctx, evt)
}

// Restart swaps in a fresh session after a terminal status, clearing all
// snapshots. The registry stays sealed: the category set that shaped every
// previous snapshot is the one the new session's snapshots use too.
func (d *Driver) Restart(sess session.Session) error {
	if d.status == StatusClosed {
		return ErrDriverClosed
	}
	if sess == nil {
		return ErrNilSession
	}

	store, err := snapshot.NewStore(storeCapacity(sess, d.cfg.snapshotMargin))
	if err != nil {
		return err
	}

	// The old session still owns its transports; release them. A host that
	// already closed it gets ErrClosed here, which is fine.
	_ = d.sess.Close()

	d.sess = sess
	d.kind = sessionKind(sess)
	d.logger = observability.EnrichLogger(d.cfg.logger, d.runID, d.kind)
	d.store = store
	d.lastSimulated = 0
	d.status = StatusIdle
	observability.LogRunStart(d.logger, d.runID, sess.NumPlayers(), sess.InputBytes())
	return nil
}

// Close shuts the session down and publishes a closed notification.
// Idempotence is not attempted: a second Close returns ErrDriverClosed.
func (d *Driver) Close() error {
	if d.status == StatusClosed {
		return ErrDriverClosed
	}
	reason := ""
	if d.status.Terminal() {
		reason = d.status.String()
	}
	closeErr := d.sess.Close()
	d.status = StatusClosed

	d.publish(context.Background(), event.New(event.TypeClosed, eventSource, d.runID, event.ClosedData{
		Frame:  int64(d.lastSimulated),
		Reason: reason,
	}, event.WithFrame(int64(d.lastSimulated))))
	observability.LogRunComplete(d.logger, d.runID, int64(d.lastSimulated), float64(time.Since(d.startedAt).Milliseconds()))

	for _, c := range d.closers {
		_ = c.Close()
	}

	if closeErr != nil && !errors.Is(closeErr, session.ErrClosed) {
		return &SessionError{Op: "close", Err: closeErr}
	}
	return nil
}

// Status returns the driver lifecycle state.
func (d *Driver) Status() Status { return d.status }

// RunID returns the identifier stamped on this driver's logs, spans, and
// events.
func (d *Driver) RunID() string { return d.runID }

// LastSimulated returns the last frame the host simulation executed, 0
// before the first step.
func (d *Driver) LastSimulated() session.Frame { return d.lastSimulated }

// Stats merges driver counters with the session's progress view.
func (d *Driver) Stats() Stats {
	st := d.sess.Stats()
	return Stats{
		Ticks:             d.ticks,
		Saves:             d.saves,
		Loads:             d.loads,
		CurrentFrame:      st.CurrentFrame,
		ConfirmedFrame:    st.ConfirmedFrame,
		Rollbacks:         st.Rollbacks,
		LastRollbackDepth: st.LastRollbackDepth,
		Stalls:            st.Stalls,
	}
}

// storeCapacity sizes the snapshot ring for a session. The deepest load a
// session can request reaches one frame below its prediction window, so the
// margin keeps slack beyond that.
func storeCapacity(sess session.Session, margin int) int {
	capacity := sess.PredictionWindow() + margin
	if capacity < 1 {
		capacity = 1
	}
	return capacity
}

// sessionKind names the session variant for logs and metric attributes.
func sessionKind(sess session.Session) string {
	switch sess.(type) {
	case *session.Local:
		return "local"
	case *session.P2P:
		return "p2p"
	case *session.Spectator:
		return "spectator"
	case *session.SyncTest:
		return "synctest"
	default:
		return "custom"
	}
}

// frameOptions binds a session frame to event metadata, leaving the frame
// unbound for events that carry none.
func frameOptions(frame session.Frame) []event.Option {
	if frame == session.NullFrame {
		return nil
	}
	return []event.Option{event.WithFrame(int64(frame))}
}
