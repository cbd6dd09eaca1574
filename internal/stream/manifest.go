package stream

import (
	"bufio"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MediaPlaylist is a parsed media-level m3u8: segment URLs in manifest order
// plus the encryption attributes when present.
type MediaPlaylist struct {
	Segments []string
	KeyURI   string
	KeyIV    string // hex, possibly 0x-prefixed
	MapURI   string
}

// IsMaster reports whether the manifest is a master playlist.
func IsMaster(body string) bool {
	return strings.Contains(body, "#EXT-X-STREAM-INF")
}

// ParseMaster extracts the variant list from a master playlist. Relative
// variant URIs resolve against base.
func ParseMaster(body string, base *url.URL) ([]Variant, error) {
	var variants []Variant
	var pending *Variant
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			v := Variant{}
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			if res, ok := attrs["RESOLUTION"]; ok {
				if _, h, found := strings.Cut(res, "x"); found {
					v.Height, _ = strconv.Atoi(h)
				}
			}
			if bw, ok := attrs["BANDWIDTH"]; ok {
				v.Bandwidth, _ = strconv.Atoi(bw)
			}
			pending = &v
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if pending != nil {
			pending.URL = resolveRef(base, line)
			variants = append(variants, *pending)
			pending = nil
		}
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("master playlist has no variants")
	}
	return variants, nil
}

// ParseMedia extracts segment URLs and encryption attributes from a media
// playlist.
func ParseMedia(body string, base *url.URL) (*MediaPlaylist, error) {
	pl := &MediaPlaylist{}
	expectSegment := false
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-KEY:"))
			if uri, ok := attrs["URI"]; ok {
				pl.KeyURI = resolveRef(base, uri)
			}
			if iv, ok := attrs["IV"]; ok {
				pl.KeyIV = iv
			}
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-MAP:"))
			if uri, ok := attrs["URI"]; ok {
				pl.MapURI = resolveRef(base, uri)
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			expectSegment = true
		case strings.HasPrefix(line, "#"):
			// other tags are irrelevant here
		default:
			if expectSegment {
				pl.Segments = append(pl.Segments, resolveRef(base, line))
				expectSegment = false
			}
		}
	}
	if len(pl.Segments) == 0 {
		return nil, fmt.Errorf("media playlist has no segments")
	}
	return pl, nil
}

// parseAttributes splits an m3u8 attribute list, honoring quoted values.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	var parts []string
	inQuotes := false
	start := 0
	for i, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	for _, part := range parts {
		key, val, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		attrs[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"`)
	}
	return attrs
}

func resolveRef(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
