package meshutil

import (
	"sort"

	"github.com/metaworking/meshsync/pkg/scene"
)

type BoneWeight struct {
	Bone   int32
	Weight float32
}

// ReduceWeights keeps the four heaviest influences and normalizes them so they
// sum to one. Ties keep the lower bone index. Non-positive weights are ignored.
func ReduceWeights(ws []BoneWeight) scene.Weights4 {
	var out scene.Weights4
	if len(ws) == 0 {
		return out
	}
	sorted := make([]BoneWeight, 0, len(ws))
	for _, w := range ws {
		if w.Weight > 0 {
			sorted = append(sorted, w)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].Bone < sorted[j].Bone
	})
	if len(sorted) > 4 {
		sorted = sorted[:4]
	}

	var total float32
	for _, w := range sorted {
		total += w.Weight
	}
	if total <= 0 {
		return out
	}
	for i, w := range sorted {
		out.Weights[i] = w.Weight / total
		out.Indices[i] = w.Bone
	}
	return out
}
