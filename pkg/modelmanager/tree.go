package modelmanager

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/galleyhq/sommelier/pkg/models"
)

// Quality tree hyperparameters. Depth is shallow on purpose: the tree only
// needs to separate broad price and vintage bands, not memorize the catalog.
const (
	qualityTreeMaxDepth   = 6
	qualityTreeMinSamples = 4
)

// qualityNode is one node of the regression tree. Leaves carry the mean
// quality of their training partition.
type qualityNode struct {
	featureIndex int
	threshold    float64
	left, right  *qualityNode
	isLeaf       bool
	value        float64
}

// QualityModel is a regression tree over numeric wine attributes that
// predicts a quality score. It backs cold-start ranking when a wine has no
// curated quality score of its own.
type QualityModel struct {
	root        *qualityNode
	defaultPred float64
}

// numeric feature order: price, vintage year, stock quantity.
const qualityFeatureCount = 3

func qualityFeatures(w *models.Wine) []float64 {
	return []float64{w.Price, float64(w.VintageYear), float64(w.StockQuantity)}
}

// TrainQualityModel fits a regression tree from wines that carry a curated
// quality score. It returns nil when fewer than the minimum sample count of
// labeled wines exist.
func TrainQualityModel(wines []*models.Wine) *QualityModel {
	var samples [][]float64
	var targets []float64
	for _, w := range wines {
		if w == nil || w.QualityScore <= 0 {
			continue
		}
		samples = append(samples, qualityFeatures(w))
		targets = append(targets, w.QualityScore)
	}
	if len(samples) < qualityTreeMinSamples {
		return nil
	}
	return &QualityModel{
		root:        buildQualityNode(samples, targets, 0),
		defaultPred: meanOf(targets),
	}
}

// PredictQuality walks the tree iteratively and returns the leaf mean. It
// satisfies the content-based engine's quality scorer contract.
func (m *QualityModel) PredictQuality(w *models.Wine) float64 {
	if m == nil || m.root == nil || w == nil {
		return 0
	}
	features := qualityFeatures(w)
	node := m.root
	for steps := 0; node != nil && steps <= qualityTreeMaxDepth+1; steps++ {
		if node.isLeaf {
			return node.value
		}
		if features[node.featureIndex] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return m.defaultPred
}

// buildQualityNode recursively grows the tree by variance reduction,
// stopping at the depth cap, the sample floor, or a split with no gain.
func buildQualityNode(samples [][]float64, targets []float64, depth int) *qualityNode {
	if depth >= qualityTreeMaxDepth || len(samples) < qualityTreeMinSamples {
		return &qualityNode{isLeaf: true, value: meanOf(targets)}
	}

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	baseVariance := varianceOf(targets)
	for feature := 0; feature < qualityFeatureCount; feature++ {
		for _, threshold := range candidateThresholds(samples, feature) {
			leftT, rightT := partitionTargets(samples, targets, feature, threshold)
			if len(leftT) == 0 || len(rightT) == 0 {
				continue
			}
			weighted := (float64(len(leftT))*varianceOf(leftT) + float64(len(rightT))*varianceOf(rightT)) / float64(len(targets))
			if gain := baseVariance - weighted; gain > bestGain {
				bestFeature, bestThreshold, bestGain = feature, threshold, gain
			}
		}
	}
	if bestFeature < 0 {
		return &qualityNode{isLeaf: true, value: meanOf(targets)}
	}

	var leftS, rightS [][]float64
	var leftT, rightT []float64
	for i, s := range samples {
		if s[bestFeature] <= bestThreshold {
			leftS = append(leftS, s)
			leftT = append(leftT, targets[i])
		} else {
			rightS = append(rightS, s)
			rightT = append(rightT, targets[i])
		}
	}
	return &qualityNode{
		featureIndex: bestFeature,
		threshold:    bestThreshold,
		left:         buildQualityNode(leftS, leftT, depth+1),
		right:        buildQualityNode(rightS, rightT, depth+1),
	}
}

// candidateThresholds returns midpoints between adjacent distinct feature
// values.
func candidateThresholds(samples [][]float64, feature int) []float64 {
	values := make([]float64, 0, len(samples))
	seen := make(map[float64]bool)
	for _, s := range samples {
		if !seen[s[feature]] {
			seen[s[feature]] = true
			values = append(values, s[feature])
		}
	}
	sort.Float64s(values)
	thresholds := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		thresholds = append(thresholds, (values[i-1]+values[i])/2)
	}
	return thresholds
}

func partitionTargets(samples [][]float64, targets []float64, feature int, threshold float64) ([]float64, []float64) {
	var left, right []float64
	for i, s := range samples {
		if s[feature] <= threshold {
			left = append(left, targets[i])
		} else {
			right = append(right, targets[i])
		}
	}
	return left, right
}

func meanOf(values []float64) float64 {
	mean, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return mean
}

func varianceOf(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	variance, err := stats.PopulationVariance(values)
	if err != nil {
		return 0
	}
	return variance
}
