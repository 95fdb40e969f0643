/*
Package rollsync provides rollback netcode for deterministic lockstep
simulations.

# Overview

rollsync keeps a fixed-tick game simulation synchronized across peers by
predicting remote inputs instead of waiting for them. Each peer simulates
ahead with predicted inputs; when a real input arrives and disagrees with
the prediction, the library restores a snapshot from just before the
mispredicted frame and resimulates forward with the corrected inputs. The
host supplies two hooks: one that samples local inputs and one that steps
the simulation.

The design splits into:
  - session: decides WHAT to simulate (predict, confirm, rewind)
  - Driver: executes those decisions against the host's state
  - registry + snapshot: capture and restore the registered game state
  - checksum: stable state digests peers compare to detect divergence

# Basic Usage

Register state categories, build a session, and tick the driver from the
game loop:

	reg := registry.New()
	reg.Register(registry.Category{
	    Name:    "world",
	    Capture: func() ([]byte, error) { return world.Marshal() },
	    Restore: func(b []byte) error { return world.Unmarshal(b) },
	})

	sess, err := session.NewP2P(session.P2PConfig{
	    NumPlayers:   2,
	    InputBytes:   4,
	    LocalPlayers: []session.PlayerHandle{0},
	    Remotes:      map[session.PlayerHandle]session.Transport{1: conn},
	})
	if err != nil {
	    log.Fatal(err)
	}

	driver, err := rollsync.NewDriver(sess, reg,
	    func(p session.PlayerHandle) (session.Input, error) {
	        return pads.Sample(p), nil
	    },
	    func(frame session.Frame, inputs []session.Input) error {
	        return world.Step(inputs)
	    })
	if err != nil {
	    log.Fatal(err)
	}
	defer driver.Close()

	for range ticker.C {
	    if err := driver.RunTick(ctx); err != nil {
	        break
	    }
	}

# Determinism

Rollback only works when resimulating a frame with the same inputs
reproduces the same state. The advance function must derive everything from
its arguments and registered state: no wall clocks, no unseeded randomness,
no map-iteration-order dependence in anything that feeds the state bytes.
The synctest session variant exists to flush violations out: it forcibly
rewinds and resimulates every frame and reports a desync when the two runs
disagree.

# Session Variants

  - session.NewLocal: every player on this machine, no prediction.
  - session.NewP2P: full rollback netcode against remote peers.
  - session.NewSpectator: follows a host's confirmed-input feed, no inputs.
  - session.NewSyncTest: offline determinism check via forced rollbacks.

The driver treats them uniformly; PredictionWindow sizes the snapshot ring.

# Desync Detection

After every snapshot the driver digests the state bytes and reports the
checksum to the session. P2P sessions exchange checksums for confirmed
frames at the configured interval; a mismatch raises a desync event and the
driver refuses further ticks with ErrDesynced. Host-to-spectator checksums
ride the confirmed-input feed the same way.

# Events

Attach an event bus to observe the session from other goroutines:

	bus := event.NewLocalBus(event.DefaultBusConfig())
	bus.Subscribe(event.TypeDesync, event.TypedHandler(
	    []string{event.TypeDesync},
	    func(ctx context.Context, data event.DesyncData, meta event.Metadata) error {
	        log.Printf("desync at frame %d", meta.Frame)
	        return nil
	    }))

	driver, err := rollsync.NewDriver(sess, reg, collect, advance,
	    rollsync.WithEventBus(bus))

The driver publishes synchronized, rollback, stall, desync, peer.disconnected,
and closed notifications. Publishing is non-blocking; the simulation never
waits on a handler.

# Configuration

Sessions and drivers can be built from files and the environment:

	cfg, err := config.Load("rollsync.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	driver, err := rollsync.BuildDriver(cfg, reg, collect, advance, transports)

# Observability

Logging, metrics, and tracing are opt-in:

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	driver, err := rollsync.NewDriver(sess, reg, collect, advance,
	    rollsync.WithLogger(logger),
	    rollsync.WithMetrics(observability.NewMetricsRecorder()),
	    rollsync.WithTracing(true))

Logs carry structured fields: run_id, session, frame, duration_ms.
OpenTelemetry metrics: rollsync.ticks, rollsync.rollbacks, etc.
OpenTelemetry tracing: rollsync.tick > rollsync.action.{kind} spans.

# Error Handling

Errors carry the failing frame and operation:

	var snapErr *rollsync.SnapshotError
	if errors.As(err, &snapErr) {
	    log.Printf("snapshot %s at frame %d failed", snapErr.Op, snapErr.Frame)
	}

Only InputError is recoverable within a session: the tick is dropped and
the next one retries. Everything else is terminal until Restart or Close.

# Thread Safety

  - Driver, Registry, and the snapshot Store belong to one goroutine
  - Transports are called from the session on that same goroutine but may
    be fed from others; implementations carry their own locking
  - event.LocalBus IS safe for concurrent use

# Subpackages

  - session: session variants and the transport seam
  - registry: named state categories with capture/restore hooks
  - snapshot: frame-keyed snapshot ring
  - checksum: stable state digests
  - event: host-observable notification bus
  - config: file and environment configuration
  - replay: confirmed-input recording and playback
  - observability: logging, metrics, and tracing helpers
*/
package rollsync
