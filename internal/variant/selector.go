// Package variant picks A/B content variations for send tasks using
// weighted selection that is deterministic per (campaign, contact,
// step), so a retried send reuses the variation of the original
// attempt instead of re-rolling.
package variant

import (
	"fmt"
	"hash/fnv"

	"github.com/mailerpro/mailerpro/internal/models"
)

// Select returns the variation to use for one contact at one step.
// When abTesting is false only the first variation is ever used.
// Weights are treated as relative likelihoods normalized by their
// sum; they do not need to total 100.
func Select(variations []models.Variation, abTesting bool, campaignID, contactID string, stepOrder int) *models.Variation {
	if len(variations) == 0 {
		return nil
	}
	if !abTesting || len(variations) == 1 {
		return &variations[0]
	}

	total := 0
	for _, v := range variations {
		total += v.Weight
	}
	if total <= 0 {
		return &variations[0]
	}

	r := draw(campaignID, contactID, stepOrder) % uint64(total)

	cum := uint64(0)
	for i := range variations {
		cum += uint64(variations[i].Weight)
		if r < cum {
			return &variations[i]
		}
	}
	return &variations[len(variations)-1]
}

// draw derives a stable pseudo-random value from the selection key.
func draw(campaignID, contactID string, stepOrder int) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", campaignID, contactID, stepOrder)
	return h.Sum64()
}
