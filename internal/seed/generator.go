package seed

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/fathom/internal/domain/types"
)

// Template is a decision that recurs with a fixed context.
type Template struct {
	Subject string
	Action  string
	Context map[string]any
}

// Planted returns the recurring decisions every run scatters through its
// records. Each is expected to surface as a pattern.
func Planted() []Template {
	return []Template{
		{"maintenance", "approve_overhaul", map[string]any{"component": "main_engine", "severity": "high"}},
		{"maintenance", "defer_repair", map[string]any{"component": "ballast_pump", "severity": "low"}},
		{"routing", "reroute", map[string]any{"reason": "weather", "region": "north_atlantic"}},
		{"fuel", "bunker_early", map[string]any{"port": "rotterdam", "price_trend": "rising"}},
		{"crew", "extend_rotation", map[string]any{"rank": "chief_engineer"}},
	}
}

var (
	noiseSubjects = []string{"maintenance", "routing", "fuel", "crew", "cargo"}
	noiseActions  = []string{"accepted", "rejected", "modified"}
	noiseVessels  = []string{"aurora", "borealis", "cygnus", "draco", "eridanus", "fornax"}
)

// seedNamespace scopes generated IDs. Equal seeds give equal IDs.
var seedNamespace = uuid.MustParse("6f1c1a52-5e1b-4f7e-9d0a-2c7f9b3e4a10")

// Generator produces deterministic decision records.
type Generator struct {
	rng     *rand.Rand
	seed    uint64
	now     time.Time
	months  int
	noise   float64
	planted []Template
	next    int
}

// NewGenerator creates a generator. Timestamps fall in the months before now.
func NewGenerator(seed uint64, now time.Time, months int, noiseRatio float64) *Generator {
	if months < 1 {
		months = 1
	}
	if noiseRatio < 0 || noiseRatio > 1 {
		noiseRatio = 0
	}
	return &Generator{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed:    seed,
		now:     now.UTC(),
		months:  months,
		noise:   noiseRatio,
		planted: Planted(),
	}
}

// Generate returns n records. Planted templates are cycled so each appears
// at least n*(1-noise)/len(planted) times.
func (g *Generator) Generate(n int) []types.Decision {
	out := make([]types.Decision, 0, n)
	planted := 0
	for i := 0; i < n; i++ {
		var d types.Decision
		if g.rng.Float64() < g.noise {
			d = g.noiseDecision()
		} else {
			t := g.planted[planted%len(g.planted)]
			planted++
			d = types.Decision{Subject: t.Subject, Action: t.Action, Context: maps.Clone(t.Context)}
		}
		d.ID = g.id()
		d.Timestamp = g.timestamp()
		out = append(out, d)
	}
	return out
}

func (g *Generator) noiseDecision() types.Decision {
	return types.Decision{
		Subject: pick(g.rng, noiseSubjects),
		Action:  pick(g.rng, noiseActions),
		Context: map[string]any{
			"vessel": pick(g.rng, noiseVessels),
			"ticket": g.rng.IntN(1_000_000),
		},
	}
}

func (g *Generator) id() string {
	g.next++
	return uuid.NewSHA1(seedNamespace, fmt.Appendf(nil, "%d/%d", g.seed, g.next)).String()
}

// timestamp picks a second inside the configured window.
func (g *Generator) timestamp() time.Time {
	start := g.now.AddDate(0, -g.months, 0)
	window := g.now.Sub(start)
	return start.Add(time.Duration(g.rng.Int64N(int64(window)))).Truncate(time.Second)
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

// batches splits records into chunks of at most size.
func batches(records []types.Decision, size int) [][]types.Decision {
	if size < 1 {
		size = len(records)
	}
	var out [][]types.Decision
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}
