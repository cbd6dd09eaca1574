package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

var illegalChars = regexp.MustCompile(`[\\/*?:"<>|]`)
var multiSpace = regexp.MustCompile(`\s+`)

// SanitizeName makes a single path segment safe on every platform: illegal
// characters become spaces, runs of whitespace collapse, trailing dots and
// spaces are trimmed, Windows reserved device names get a "_" prefix, and
// the result is capped at MaxFilenameBytes of UTF-8 with the extension kept.
func SanitizeName(name string) string {
	s := illegalChars.ReplaceAllString(name, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")
	if s == "" {
		return "_"
	}
	base := s
	if i := strings.IndexByte(s, '.'); i > 0 {
		base = s[:i]
	}
	if windowsReserved[strings.ToUpper(base)] {
		s = "_" + s
	}
	return truncateName(s, MaxFilenameBytes)
}

// truncateName caps a filename at maxBytes of UTF-8 without splitting a rune,
// keeping the extension intact.
func truncateName(name string, maxBytes int) string {
	if len(name) <= maxBytes {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) >= maxBytes {
		ext = ""
	}
	stem := name[:len(name)-len(ext)]
	budget := maxBytes - len(ext)
	for budget > 0 && !utf8.RuneStart(stem[budget]) {
		budget--
	}
	return stem[:budget] + ext
}

// SecureJoin joins parts under root and rejects any result that escapes it.
func SecureJoin(root string, parts ...string) (string, error) {
	joined := filepath.Join(append([]string{root}, parts...)...)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: path %q escapes %q", ErrFilesystem, joined, root)
	}
	return joined, nil
}

// ParseSelection parses "all" or a 1-based expression like "1,3,5-8" against
// total items and returns sorted deduplicated 0-based indices. Out-of-range
// values are clamped into [1, total].
func ParseSelection(expr string, total int) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if total <= 0 {
		return nil, nil
	}
	if expr == "" || strings.EqualFold(expr, "all") {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	picked := make(map[int]bool)
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(strings.TrimSpace(lo))
			end, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid selection range %q", part)
			}
			if start > end {
				start, end = end, start
			}
			start = max(start, 1)
			end = min(end, total)
			for i := start; i <= end; i++ {
				picked[i-1] = true
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid selection index %q", part)
		}
		n = min(max(n, 1), total)
		picked[n-1] = true
	}
	out := make([]int, 0, len(picked))
	for i := range picked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// CleanPartials removes leftover .tmp files and .sed-dl-temp segment
// directories under dir and returns how many entries were deleted.
func CleanPartials(dir string) (int, error) {
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() != TempDirName {
				return nil
			}
			if err := os.RemoveAll(path); err != nil {
				return err
			}
			removed++
			return filepath.SkipDir
		}
		if !strings.HasSuffix(d.Name(), TempSuffix) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("%w: %v", ErrFilesystem, err)
	}
	return removed, nil
}
