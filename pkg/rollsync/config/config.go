// Package config provides typed configuration for rollsync sessions and the
// driver, loadable from YAML/JSON files with environment overrides.
package config

import (
	"fmt"

	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
)

// Session variants.
const (
	VariantLocal     = "local"
	VariantP2P       = "p2p"
	VariantSpectator = "spectator"
	VariantSynctest  = "synctest"
)

// Config is the top-level rollsync configuration.
type Config struct {
	Session SessionConfig `json:"session" yaml:"session" envPrefix:"ROLLSYNC_SESSION_"`
	Driver  DriverConfig  `json:"driver" yaml:"driver" envPrefix:"ROLLSYNC_DRIVER_"`
}

// SessionConfig selects and parameterizes a session variant.
type SessionConfig struct {
	// Variant is one of local, p2p, spectator, synctest.
	Variant string `json:"variant" yaml:"variant" env:"VARIANT"`

	// NumPlayers is the total player count across all peers.
	NumPlayers int `json:"num_players" yaml:"num_players" env:"NUM_PLAYERS"`

	// InputBytes is the fixed per-player input size.
	InputBytes int `json:"input_bytes" yaml:"input_bytes" env:"INPUT_BYTES"`

	// LocalPlayers lists the player handles owned by this process.
	LocalPlayers []int `json:"local_players" yaml:"local_players" env:"LOCAL_PLAYERS"`

	// InputDelay shifts local inputs this many frames into the future.
	InputDelay int `json:"input_delay" yaml:"input_delay" env:"INPUT_DELAY"`

	// MaxPrediction bounds how far the session runs ahead of confirmed
	// remote inputs. 0 selects the default.
	MaxPrediction int `json:"max_prediction" yaml:"max_prediction" env:"MAX_PREDICTION"`

	// ChecksumInterval exchanges state checksums every N frames, 0 disables.
	ChecksumInterval int `json:"checksum_interval" yaml:"checksum_interval" env:"CHECKSUM_INTERVAL"`

	// CheckDistance is the synctest rollback depth. 0 selects the default.
	CheckDistance int `json:"check_distance" yaml:"check_distance" env:"CHECK_DISTANCE"`

	// CatchupLimit bounds spectator frames emitted per tick. 0 selects the
	// default.
	CatchupLimit int `json:"catchup_limit" yaml:"catchup_limit" env:"CATCHUP_LIMIT"`
}

// DriverConfig parameterizes the driver around a session.
type DriverConfig struct {
	// SnapshotMargin is extra snapshot ring capacity beyond the session's
	// prediction window.
	SnapshotMargin int `json:"snapshot_margin" yaml:"snapshot_margin" env:"SNAPSHOT_MARGIN"`

	// Checksum enables state checksumming after every save.
	Checksum bool `json:"checksum" yaml:"checksum" env:"CHECKSUM"`

	// ReplayPath is the SQLite file confirmed inputs are recorded to.
	// Empty disables recording.
	ReplayPath string `json:"replay_path" yaml:"replay_path" env:"REPLAY_PATH"`
}

// Default returns a two-player local session configuration.
func Default() Config {
	return Config{
		Session: SessionConfig{
			Variant:       VariantLocal,
			NumPlayers:    2,
			InputBytes:    4,
			LocalPlayers:  []int{0, 1},
			MaxPrediction: session.DefaultMaxPrediction,
			CheckDistance: session.DefaultCheckDistance,
			CatchupLimit:  session.DefaultCatchupLimit,
		},
		Driver: DriverConfig{
			SnapshotMargin: 2,
			Checksum:       true,
		},
	}
}

// Validate checks cross-field consistency. Session constructors validate the
// full parameter set again; this catches file and environment mistakes early.
func (c Config) Validate() error {
	switch c.Session.Variant {
	case VariantLocal, VariantP2P, VariantSpectator, VariantSynctest:
	default:
		return fmt.Errorf("unknown session variant: %q", c.Session.Variant)
	}

	if c.Session.NumPlayers < 1 {
		return fmt.Errorf("num_players must be at least 1, got %d", c.Session.NumPlayers)
	}
	if c.Session.InputBytes < 1 {
		return fmt.Errorf("input_bytes must be at least 1, got %d", c.Session.InputBytes)
	}
	if c.Session.InputDelay < 0 || c.Session.InputDelay > session.MaxInputDelay {
		return fmt.Errorf("input_delay must be in [0, %d], got %d", session.MaxInputDelay, c.Session.InputDelay)
	}
	if c.Session.MaxPrediction < 0 {
		return fmt.Errorf("max_prediction must not be negative, got %d", c.Session.MaxPrediction)
	}
	if c.Session.ChecksumInterval < 0 {
		return fmt.Errorf("checksum_interval must not be negative, got %d", c.Session.ChecksumInterval)
	}
	if c.Session.CheckDistance < 0 {
		return fmt.Errorf("check_distance must not be negative, got %d", c.Session.CheckDistance)
	}
	if c.Session.CatchupLimit < 0 {
		return fmt.Errorf("catchup_limit must not be negative, got %d", c.Session.CatchupLimit)
	}

	for _, p := range c.Session.LocalPlayers {
		if p < 0 || p >= c.Session.NumPlayers {
			return fmt.Errorf("local player %d out of range [0, %d)", p, c.Session.NumPlayers)
		}
	}

	switch c.Session.Variant {
	case VariantLocal, VariantSynctest:
		// Every player is local; an explicit list is allowed but must be
		// complete.
		if len(c.Session.LocalPlayers) != 0 && len(c.Session.LocalPlayers) != c.Session.NumPlayers {
			return fmt.Errorf("%s sessions own every player, got %d of %d",
				c.Session.Variant, len(c.Session.LocalPlayers), c.Session.NumPlayers)
		}
	case VariantP2P:
		if len(c.Session.LocalPlayers) == 0 {
			return fmt.Errorf("p2p sessions need at least one local player")
		}
	case VariantSpectator:
		if len(c.Session.LocalPlayers) != 0 {
			return fmt.Errorf("spectator sessions own no players, got %d", len(c.Session.LocalPlayers))
		}
	}

	if c.Driver.SnapshotMargin < 0 {
		return fmt.Errorf("snapshot_margin must not be negative, got %d", c.Driver.SnapshotMargin)
	}
	return nil
}
