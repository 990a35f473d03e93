package registry

import (
	"path/filepath"
	"testing"

	"trading-core/internal/engine"
)

func TestRegisterUpdateGetAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r := New(path)

	r.Register("BTC/USDT", engine.EngineHealth{Symbol: "BTC/USDT", State: engine.StateRunning})
	r.Register("ETH/USDT", engine.EngineHealth{Symbol: "ETH/USDT", State: engine.StateStopped})

	all := r.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	r.Update("BTC/USDT", engine.EngineHealth{Symbol: "BTC/USDT", State: engine.StateCrashed, ErrorCount: 3})
	entry, ok := r.Get("BTC/USDT")
	if !ok || entry.State != engine.StateCrashed || entry.ErrorCount != 3 {
		t.Fatalf("expected updated entry with CRASHED state, got %+v", entry)
	}

	r.Unregister("ETH/USDT")
	if _, ok := r.Get("ETH/USDT"); ok {
		t.Fatal("expected ETH/USDT to be unregistered")
	}
}

func TestRegistrySurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r1 := New(path)
	r1.Register("BTC/USDT", engine.EngineHealth{Symbol: "BTC/USDT", State: engine.StateRunning})

	r2 := New(path)
	entry, ok := r2.Get("BTC/USDT")
	if !ok || entry.Symbol != "BTC/USDT" {
		t.Fatalf("expected reloaded registry to contain BTC/USDT, got %+v ok=%v", entry, ok)
	}
}
