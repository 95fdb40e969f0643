package rollsync

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/outrunlabs/rollsync/pkg/rollsync/config"
	"github.com/outrunlabs/rollsync/pkg/rollsync/registry"
	"github.com/outrunlabs/rollsync/pkg/rollsync/replay"
	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// BuildSession constructs the session variant the configuration names.
// Transports are runtime arguments the config cannot carry:
//
//   - local, synctest: no transports.
//   - spectator: exactly one transport, the feed.
//   - p2p: one transport per remote handle, in ascending handle order.
//     Handles owned by the same peer repeat that peer's transport.
func BuildSession(cfg config.SessionConfig, transports ...session.Transport) (session.Session, error) {
	switch cfg.Variant {
	case config.VariantLocal:
		if len(transports) != 0 {
			return nil, fmt.Errorf("local session takes no transports, got %d", len(transports))
		}
		return session.NewLocal(session.LocalConfig{
			NumPlayers:       cfg.NumPlayers,
			InputBytes:       cfg.InputBytes,
			ChecksumInterval: cfg.ChecksumInterval,
		})

	case config.VariantSynctest:
		if len(transports) != 0 {
			return nil, fmt.Errorf("synctest session takes no transports, got %d", len(transports))
		}
		return session.NewSyncTest(session.SyncTestConfig{
			NumPlayers:    cfg.NumPlayers,
			InputBytes:    cfg.InputBytes,
			CheckDistance: cfg.CheckDistance,
		})

	case config.VariantSpectator:
		if len(transports) != 1 {
			return nil, fmt.Errorf("spectator session takes exactly one feed transport, got %d", len(transports))
		}
		return session.NewSpectator(session.SpectatorConfig{
			NumPlayers:       cfg.NumPlayers,
			InputBytes:       cfg.InputBytes,
			Feed:             transports[0],
			CatchupLimit:     cfg.CatchupLimit,
			ChecksumInterval: cfg.ChecksumInterval,
		})

	case config.VariantP2P:
		remotes, err := remoteMap(cfg, transports)
		if err != nil {
			return nil, err
		}
		locals := make([]session.PlayerHandle, len(cfg.LocalPlayers))
		for i, p := range cfg.LocalPlayers {
			locals[i] = session.PlayerHandle(p)
		}
		return session.NewP2P(session.P2PConfig{
			NumPlayers:       cfg.NumPlayers,
			InputBytes:       cfg.InputBytes,
			LocalPlayers:     locals,
			Remotes:          remotes,
			InputDelay:       cfg.InputDelay,
			MaxPrediction:    cfg.MaxPrediction,
			ChecksumInterval: cfg.ChecksumInterval,
		})

	default:
		return nil, fmt.Errorf("unknown session variant: %q", cfg.Variant)
	}
}

// remoteMap assigns transports to the non-local handles in ascending order.
func remoteMap(cfg config.SessionConfig, transports []session.Transport) (map[session.PlayerHandle]session.Transport, error) {
	local := make(map[int]bool, len(cfg.LocalPlayers))
	for _, p := range cfg.LocalPlayers {
		local[p] = true
	}
	var remotes []session.PlayerHandle
	for h := 0; h < cfg.NumPlayers; h++ {
		if !local[h] {
			remotes = append(remotes, session.PlayerHandle(h))
		}
	}
	if len(transports) != len(remotes) {
		return nil, fmt.Errorf("p2p session has %d remote players but got %d transports", len(remotes), len(transports))
	}
	m := make(map[session.PlayerHandle]session.Transport, len(remotes))
	for i, h := range remotes {
		m[h] = transports[i]
	}
	return m, nil
}

// BuildDriver validates the configuration, builds the session, and wires a
// driver around it: snapshot margin and checksumming from the driver config,
// plus a SQLite-backed replay recorder when a replay path is set. Extra
// options are applied after the config-derived ones and win on conflict.
//
// The driver owns everything BuildDriver opens: Close releases the session
// and any replay store.
func BuildDriver(cfg config.Config, reg *registry.Registry, collector InputCollector, advance AdvanceFunc, transports []session.Transport, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	sess, err := BuildSession(cfg.Session, transports...)
	if err != nil {
		return nil, err
	}

	all := []Option{WithSnapshotMargin(cfg.Driver.SnapshotMargin)}
	if !cfg.Driver.Checksum {
		all = append(all, WithChecksum(nil))
	}
	all = append(all, opts...)

	var replayStore replay.Store
	if cfg.Driver.ReplayPath != "" {
		// The recorder keys records by run ID; resolve it now so the replay
		// run matches the driver's.
		scratch := defaultDriverConfig()
		for _, opt := range all {
			opt(&scratch)
		}
		runID := scratch.runID
		if runID == "" {
			runID = uuid.New().String()
			all = append(all, WithRunID(runID))
		}

		replayStore, err = replay.NewSQLiteStore(cfg.Driver.ReplayPath)
		if err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("open replay store: %w", err)
		}
		all = append(all, WithRecorder(replay.NewRecorder(replayStore, runID)))
	}

	d, err := NewDriver(sess, reg, collector, advance, all...)
	if err != nil {
		_ = sess.Close()
		if replayStore != nil {
			_ = replayStore.Close()
		}
		return nil, err
	}
	if replayStore != nil {
		d.closers = append(d.closers, replayStore)
	}
	return d, nil
}
