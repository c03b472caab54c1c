package telemetry

import (
	"testing"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Seed.RunSeed = 17
	cfg.Population.InitialEntities = 50
	cfg.Population.MaxPopulation = 300
	e, err := engine.Create(250, cfg)
	if err != nil {
		t.Fatalf("engine.Create: %v", err)
	}
	return e
}

func TestCollectorFlushReflectsPopulation(t *testing.T) {
	e := testEngine(t)
	c := NewCollector()

	for i := 0; i < 10; i++ {
		e.Step()
	}
	ws := c.Flush(e)

	if ws.WindowStartStep != 0 || ws.WindowEndStep != 10 {
		t.Fatalf("window bounds = [%d,%d], want [0,10]", ws.WindowStartStep, ws.WindowEndStep)
	}
	total := ws.RandomCount + ws.FlockingCount + ws.SolitaryCount + ws.PredatoryCount + ws.GrazingCount
	if total != ws.EntityCount {
		t.Fatalf("style counts sum %d != entity count %d", total, ws.EntityCount)
	}
}

func TestCollectorFlushIsWindowed(t *testing.T) {
	e := testEngine(t)
	c := NewCollector()

	for i := 0; i < 5; i++ {
		e.Step()
	}
	first := c.Flush(e)
	for i := 0; i < 5; i++ {
		e.Step()
	}
	second := c.Flush(e)

	if first.WindowStartStep != 0 || first.WindowEndStep != 5 {
		t.Fatalf("first window = [%d,%d], want [0,5]", first.WindowStartStep, first.WindowEndStep)
	}
	if second.WindowStartStep != 5 || second.WindowEndStep != 10 {
		t.Fatalf("second window = [%d,%d], want [5,10]", second.WindowStartStep, second.WindowEndStep)
	}
}
