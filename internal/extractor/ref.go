package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

var refIndexRe = regexp.MustCompile(`\[([\d,\s]+|\*)\]`)

// RefSpec is one normalized res_ref entry. The API writes these in several
// shapes ("media/video[1,2]", "[*]", "3"); parsing happens once and the rest
// of the code only sees an index list or a wildcard.
type RefSpec struct {
	wildcard bool
	indices  []int
}

// ParseRefSpec normalizes a raw res_ref string. The last bracket group wins
// when a path prefix contains brackets of its own.
func ParseRefSpec(raw string) (RefSpec, bool) {
	matches := refIndexRe.FindAllStringSubmatch(raw, -1)
	if len(matches) > 0 {
		group := matches[len(matches)-1][1]
		if group == "*" {
			return RefSpec{wildcard: true}, true
		}
		var indices []int
		for _, part := range strings.Split(group, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				continue
			}
			indices = append(indices, n)
		}
		if len(indices) == 0 {
			return RefSpec{}, false
		}
		return RefSpec{indices: indices}, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		return RefSpec{indices: []int{n}}, true
	}
	return RefSpec{}, false
}

// Indices expands the spec against the resource count, dropping anything out
// of range.
func (r RefSpec) Indices(total int) []int {
	if r.wildcard {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	var out []int
	for _, i := range r.indices {
		if i >= 0 && i < total {
			out = append(out, i)
		}
	}
	return out
}

// expandRefs flattens a list of raw res_ref strings into resource indices.
func expandRefs(refs []string, total int) []int {
	var out []int
	for _, raw := range refs {
		spec, ok := ParseRefSpec(raw)
		if !ok {
			continue
		}
		out = append(out, spec.Indices(total)...)
	}
	return out
}
