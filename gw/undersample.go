package gw

import (
	"math"
	"math/rand"
	"sort"
)

// undersample drops random majority rows so that minority/majority reaches
// ratio, or 1 when ratio is 0. It returns the kept row positions in their
// original order. Labels other than the two most frequent are kept as is.
func undersample(y []int, ratio float64, rng *rand.Rand) []int {
	byLabel := make(map[int][]int)
	for i, label := range y {
		byLabel[label] = append(byLabel[label], i)
	}
	if len(byLabel) < 2 {
		return identity(len(y))
	}

	minority := math.MaxInt
	for _, rows := range byLabel {
		if len(rows) < minority {
			minority = len(rows)
		}
	}
	target := minority
	if ratio > 0 {
		target = int(float64(minority) / ratio)
	}

	labels := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	kept := make([]int, 0, len(y))
	for _, label := range labels {
		rows := byLabel[label]
		if len(rows) <= target {
			kept = append(kept, rows...)
			continue
		}
		perm := rng.Perm(len(rows))[:target]
		for _, p := range perm {
			kept = append(kept, rows[p])
		}
	}
	sort.Ints(kept)
	return kept
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
