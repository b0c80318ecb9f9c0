package contentbased

import (
	"fmt"
	"strings"

	"github.com/galleyhq/sommelier/pkg/models"
)

// Sub-vector weights. Wine type dominates, so two reds of different regions
// stay closer than a red and a white from the same region.
const (
	typeWeight    = 1.0
	grapeWeight   = 0.8
	regionWeight  = 0.6
	priceWeight   = 0.4
	vintageWeight = 0.3
	textWeight    = 0.1
)

// ExtractFeatures converts a wine's attributes into a sparse feature vector.
// Missing attributes omit their sub-vector rather than failing, so partially
// described wines still participate in similarity with reduced weight.
func ExtractFeatures(wine *models.Wine) map[string]float64 {
	vec := make(map[string]float64)
	if wine == nil {
		return vec
	}
	if wine.Type != "" {
		vec["type:"+strings.ToLower(wine.Type)] = typeWeight
	}
	if wine.GrapeVariety != "" {
		vec["grape:"+strings.ToLower(wine.GrapeVariety)] = grapeWeight
	}
	if wine.Region != "" {
		vec["region:"+strings.ToLower(wine.Region)] = regionWeight
	}
	if wine.Price > 0 {
		vec["price:"+priceBucket(wine.Price)] = priceWeight
	}
	if wine.VintageYear > 0 {
		vec["vintage:"+vintageBucket(wine.VintageYear)] = vintageWeight
	}
	for _, token := range descriptionTokens(wine.Description) {
		vec["text:"+token] = textWeight
	}
	return vec
}

func priceBucket(price float64) string {
	switch {
	case price < 25:
		return "budget"
	case price < 60:
		return "mid"
	case price < 120:
		return "premium"
	default:
		return "luxury"
	}
}

// vintageBucket groups vintages into five-year bands so nearby vintages share
// a feature while distant ones do not.
func vintageBucket(year int) string {
	return fmt.Sprintf("%d", year/5*5)
}

// descriptionTokens extracts coarse text features from the free-form
// description. Short tokens carry no signal and are dropped.
func descriptionTokens(description string) []string {
	if description == "" {
		return nil
	}
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		if len(f) <= 3 || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}
