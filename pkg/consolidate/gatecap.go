package consolidate

import (
	"fmt"
	"sort"
	"strings"

	"glyphos/pkg/protocol"
)

// Resonance scores a glyph against the core-emotion weights: the sum of the
// weights of its keywords, plus its name words, that are core emotions.
func Resonance(g protocol.Glyph, weights map[string]float64) float64 {
	seen := make(map[string]struct{})
	score := 0.0
	add := func(w string) {
		w = strings.ToLower(w)
		if _, dup := seen[w]; dup {
			return
		}
		seen[w] = struct{}{}
		score += weights[w]
	}
	for _, kw := range g.Keywords {
		add(kw)
	}
	for _, w := range strings.Fields(g.NormalizedKey) {
		add(w)
	}
	return score
}

type ranked struct {
	g     protocol.Glyph
	score float64
}

// gateCapRows keeps the top-N glyphs of every capped gate by resonance
// (ties: frequency desc, id asc) and plans the rest for archive.
func (p *Pruner) gateCapRows(active []protocol.Glyph, removed map[int64]bool) []Row {
	byGate := make(map[string][]ranked)
	for _, g := range active {
		if removed[g.ID] {
			continue
		}
		if _, capped := p.cfg.Prune.GateCaps[g.Gate]; !capped {
			continue
		}
		byGate[g.Gate] = append(byGate[g.Gate], ranked{g: g, score: Resonance(g, p.cfg.Affect.CoreWeights)})
	}

	var rows []Row
	for _, gate := range sortedKeys(byGate) {
		members := byGate[gate]
		limit := p.cfg.Prune.GateCaps[gate]
		if len(members) <= limit {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			a, b := members[i], members[j]
			if a.score != b.score {
				return a.score > b.score
			}
			if a.g.Frequency != b.g.Frequency {
				return a.g.Frequency > b.g.Frequency
			}
			return a.g.ID < b.g.ID
		})
		for _, r := range members[limit:] {
			rows = append(rows, Row{
				NormalizedKey: r.g.NormalizedKey,
				Count:         len(members),
				RemoveIDs:     []int64{r.g.ID},
				SampleNames:   []string{r.g.Name},
				Reason:        protocol.ReasonGateCap,
				Reasons: []string{
					"gate=" + gate,
					fmt.Sprintf("cap=%d", limit),
					fmt.Sprintf("resonance=%.2f", r.score),
				},
			})
		}
	}
	return rows
}
