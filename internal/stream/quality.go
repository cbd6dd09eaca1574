package stream

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Variant is one rendition of an HLS master playlist. Height comes from the
// RESOLUTION attribute; Bandwidth breaks ties when heights are missing.
type Variant struct {
	Height    int
	Bandwidth int
	URL       string
}

// SortVariants orders variants best first.
func SortVariants(variants []Variant) {
	sort.SliceStable(variants, func(i, j int) bool {
		if variants[i].Height != variants[j].Height {
			return variants[i].Height > variants[j].Height
		}
		return variants[i].Bandwidth > variants[j].Bandwidth
	})
}

// SelectVariant applies a quality policy ("best", "worst", or a numeric
// height like "720" or "720p") to the variant list. When the exact height is
// absent it falls back to the nearest height above the request, or the best
// available when nothing sits above; fellBack reports that this happened so
// the caller can tell the user once.
func SelectVariant(variants []Variant, policy string) (Variant, bool, error) {
	if len(variants) == 0 {
		return Variant{}, false, fmt.Errorf("no variants available")
	}
	sorted := make([]Variant, len(variants))
	copy(sorted, variants)
	SortVariants(sorted)

	policy = strings.TrimSpace(strings.ToLower(policy))
	switch policy {
	case "", "best":
		return sorted[0], false, nil
	case "worst":
		return sorted[len(sorted)-1], false, nil
	}
	want, err := strconv.Atoi(strings.TrimSuffix(policy, "p"))
	if err != nil {
		return Variant{}, false, fmt.Errorf("invalid quality %q", policy)
	}
	for _, v := range sorted {
		if v.Height == want {
			return v, false, nil
		}
	}
	// Nearest above the request; sorted descending, so scan from the bottom.
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Height > want {
			return sorted[i], true, nil
		}
	}
	return sorted[0], true, nil
}
