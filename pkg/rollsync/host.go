package rollsync

import "github.com/outrunlabs/rollsync/pkg/rollsync/session"

// InputCollector samples the current input for one local player. The driver
// calls it once per local handle at the start of every tick, on the
// simulation goroutine. The returned slice must be exactly the session's
// input size; the driver copies nothing, so the collector should hand over a
// buffer it will not mutate until the next tick.
type InputCollector func(player session.PlayerHandle) (session.Input, error)

// AdvanceFunc runs one deterministic simulation step. inputs holds every
// player's input for the frame, indexed by handle; some entries are
// predictions that a later rollback may correct, so the step must derive
// everything from its arguments and registered state. An error is terminal
// for the session.
type AdvanceFunc func(frame session.Frame, inputs []session.Input) error
