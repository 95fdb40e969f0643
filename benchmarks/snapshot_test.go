package benchmarks

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/outrunlabs/rollsync/pkg/rollsync/checksum"
	"github.com/outrunlabs/rollsync/pkg/rollsync/registry"
	"github.com/outrunlabs/rollsync/pkg/rollsync/replay"
	"github.com/outrunlabs/rollsync/pkg/rollsync/session"
	"github.com/outrunlabs/rollsync/pkg/rollsync/snapshot"
)

// benchWorld is a mid-sized game state for realistic snapshot payloads: a
// tick counter plus a table of entity transforms.
type benchWorld struct {
	tick     uint64
	entities [64]struct {
		x, y, vx, vy int32
	}
}

// BenchmarkStore_Save measures saving one frame into the snapshot ring.
func BenchmarkStore_Save(b *testing.B) {
	store, err := snapshot.NewStore(16)
	if err != nil {
		b.Fatal(err)
	}
	blobs := worldBlobs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Save(snapshot.Snapshot{Frame: session.Frame(i), Blobs: blobs})
	}
}

// BenchmarkStore_Load measures loading a retained frame back out.
func BenchmarkStore_Load(b *testing.B) {
	store, err := snapshot.NewStore(16)
	if err != nil {
		b.Fatal(err)
	}
	if err := store.Save(snapshot.Snapshot{Frame: 1, Blobs: worldBlobs()}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Load(1)
	}
}

// BenchmarkRegistry_CaptureAll measures serializing the registered state.
func BenchmarkRegistry_CaptureAll(b *testing.B) {
	reg := worldRegistry(&benchWorld{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = reg.CaptureAll()
	}
}

// BenchmarkRegistry_RestoreAll measures feeding a captured state back in.
func BenchmarkRegistry_RestoreAll(b *testing.B) {
	reg := worldRegistry(&benchWorld{})
	blobs, err := reg.CaptureAll()
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = reg.RestoreAll(blobs)
	}
}

// BenchmarkChecksum_Sum measures digesting a snapshot's blobs.
func BenchmarkChecksum_Sum(b *testing.B) {
	engine := checksum.New()
	blobs := worldBlobs()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Sum(blobs)
	}
}

// BenchmarkMemoryStore_Append measures in-memory replay recording.
func BenchmarkMemoryStore_Append(b *testing.B) {
	store := replay.NewMemoryStore()
	vec := inputVector(4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Append(replay.Record{RunID: "run-1", Frame: session.Frame(i % 128), Inputs: vec})
	}
}

// BenchmarkSQLiteStore_Append measures SQLite replay recording.
func BenchmarkSQLiteStore_Append(b *testing.B) {
	store, cleanup := createSQLiteStore(b)
	defer cleanup()
	vec := inputVector(4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Append(replay.Record{RunID: "run-1", Frame: session.Frame(i % 128), Inputs: vec})
	}
}

// BenchmarkSQLiteStore_List measures reading a recorded run back.
func BenchmarkSQLiteStore_List(b *testing.B) {
	store, cleanup := createSQLiteStore(b)
	defer cleanup()
	vec := inputVector(4)
	for f := 1; f <= 128; f++ {
		if err := store.Append(replay.Record{RunID: "run-1", Frame: session.Frame(f), Inputs: vec}); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.List("run-1")
	}
}

// Helper functions

func worldRegistry(w *benchWorld) *registry.Registry {
	reg := registry.New()
	mustRegister(reg, registry.Category{
		Name: "tick",
		Capture: func() ([]byte, error) {
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, w.tick)
			return buf, nil
		},
		Restore: func(blob []byte) error {
			w.tick = binary.LittleEndian.Uint64(blob)
			return nil
		},
	})
	mustRegister(reg, registry.Category{
		Name: "entities",
		Capture: func() ([]byte, error) {
			buf := make([]byte, 0, len(w.entities)*16)
			var word [4]byte
			for _, e := range w.entities {
				for _, v := range []int32{e.x, e.y, e.vx, e.vy} {
					binary.LittleEndian.PutUint32(word[:], uint32(v))
					buf = append(buf, word[:]...)
				}
			}
			return buf, nil
		},
		Restore: func(blob []byte) error {
			for i := range w.entities {
				w.entities[i].x = int32(binary.LittleEndian.Uint32(blob[i*16:]))
				w.entities[i].y = int32(binary.LittleEndian.Uint32(blob[i*16+4:]))
				w.entities[i].vx = int32(binary.LittleEndian.Uint32(blob[i*16+8:]))
				w.entities[i].vy = int32(binary.LittleEndian.Uint32(blob[i*16+12:]))
			}
			return nil
		},
	})
	return reg
}

func mustRegister(reg *registry.Registry, cat registry.Category) {
	if err := reg.Register(cat); err != nil {
		panic(err)
	}
}

func worldBlobs() [][]byte {
	w := &benchWorld{tick: 42}
	for i := range w.entities {
		w.entities[i].x = int32(i * 3)
		w.entities[i].y = int32(i * 7)
	}
	blobs, err := worldRegistry(w).CaptureAll()
	if err != nil {
		panic(err)
	}
	return blobs
}

func inputVector(players int) []session.Input {
	vec := make([]session.Input, players)
	for i := range vec {
		vec[i] = session.Input{byte(i), byte(i * 2)}
	}
	return vec
}

func createSQLiteStore(b *testing.B) (*replay.SQLiteStore, func()) {
	b.Helper()
	tmpFile, err := os.CreateTemp("", "bench-*.db")
	if err != nil {
		b.Fatal(err)
	}
	tmpFile.Close()

	store, err := replay.NewSQLiteStore(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		b.Fatal(err)
	}

	return store, func() {
		store.Close()
		os.Remove(tmpFile.Name())
	}
}
