// Package cluster groups chunk embeddings by greedy agglomerative merging.
// Clusters are transient: recomputed on demand, never stored.
package cluster

import (
	"fmt"
	"math"
)

type Options struct {
	SimilarityThreshold float64
	MinClusterSize      int
	MaxClusterSize      int
	TargetCount         int
}

func (o Options) withDefaults() Options {
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = 0.75
	}
	if o.MinClusterSize <= 0 {
		o.MinClusterSize = 1
	}
	if o.MaxClusterSize <= 0 {
		o.MaxClusterSize = 12
	}
	return o
}

type Item struct {
	ChunkID string
	Vector  []float32
}

type Cluster struct {
	ID            string
	ChunkIDs      []string
	Centroid      []float32
	Size          int
	AvgSimilarity float64
}

// Cosine returns the cosine similarity of two vectors, clamped to [0,1].
// Mismatched or empty vectors score zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Agglomerate starts with one cluster per item and repeatedly merges the most
// similar eligible pair. Because the best pair is always taken first, each
// accepted merge's similarity is non-increasing. Merging uses a size-weighted
// centroid average; pairs whose combined size would exceed MaxClusterSize are
// skipped. Clusters below MinClusterSize are filtered from the result.
func Agglomerate(items []Item, opts Options) []Cluster {
	return agglomerate(items, opts, nil)
}

// agglomerate runs the merge loop, reporting each accepted pair similarity
// through accepted when set.
func agglomerate(items []Item, opts Options, accepted func(sim float64)) []Cluster {
	opts = opts.withDefaults()
	working := make([]Cluster, 0, len(items))
	for i, it := range items {
		if len(it.Vector) == 0 {
			continue
		}
		centroid := make([]float32, len(it.Vector))
		copy(centroid, it.Vector)
		working = append(working, Cluster{
			ID:       fmt.Sprintf("cluster-%d", i),
			ChunkIDs: []string{it.ChunkID},
			Centroid: centroid,
			Size:     1,
		})
	}

	for len(working) > 1 {
		if opts.TargetCount > 0 && len(working) <= opts.TargetCount {
			break
		}
		bi, bj := -1, -1
		best := -1.0
		for i := 0; i < len(working); i++ {
			for j := i + 1; j < len(working); j++ {
				if working[i].Size+working[j].Size > opts.MaxClusterSize {
					continue
				}
				sim := Cosine(working[i].Centroid, working[j].Centroid)
				if sim >= opts.SimilarityThreshold && sim > best {
					best = sim
					bi, bj = i, j
				}
			}
		}
		if bi < 0 {
			break
		}
		if accepted != nil {
			accepted(best)
		}
		merged := merge(working[bi], working[bj], best)
		working[bi] = merged
		working = append(working[:bj], working[bj+1:]...)
	}

	out := make([]Cluster, 0, len(working))
	for _, c := range working {
		if c.Size < opts.MinClusterSize {
			continue
		}
		out = append(out, c)
	}
	return out
}

func merge(a, b Cluster, pairSim float64) Cluster {
	total := a.Size + b.Size
	centroid := make([]float32, len(a.Centroid))
	wa := float32(a.Size) / float32(total)
	wb := float32(b.Size) / float32(total)
	for i := range centroid {
		centroid[i] = a.Centroid[i]*wa + b.Centroid[i]*wb
	}
	ids := make([]string, 0, total)
	ids = append(ids, a.ChunkIDs...)
	ids = append(ids, b.ChunkIDs...)

	// Weighted running average of accepted merge similarities.
	mergesA := float64(a.Size - 1)
	mergesB := float64(b.Size - 1)
	sumSim := a.AvgSimilarity*mergesA + b.AvgSimilarity*mergesB + pairSim
	avg := sumSim / (mergesA + mergesB + 1)

	return Cluster{
		ID:            a.ID,
		ChunkIDs:      ids,
		Centroid:      centroid,
		Size:          total,
		AvgSimilarity: avg,
	}
}
