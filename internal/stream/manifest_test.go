package stream

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterFixture = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1920x1080
1080/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1200000,RESOLUTION=1280x720
720/index.m3u8
`

const mediaFixture = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-KEY:METHOD=AES-128,URI="https://key.example/k/abc",IV=0x00000000000000000000000000000001
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXT-X-ENDLIST
`

func TestIsMaster(t *testing.T) {
	assert.True(t, IsMaster(masterFixture))
	assert.False(t, IsMaster(mediaFixture))
}

func TestParseMaster(t *testing.T) {
	base, _ := url.Parse("https://cdn.example/v/master.m3u8")
	variants, err := ParseMaster(masterFixture, base)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, 1080, variants[0].Height)
	assert.Equal(t, 2500000, variants[0].Bandwidth)
	assert.Equal(t, "https://cdn.example/v/1080/index.m3u8", variants[0].URL)
	assert.Equal(t, "https://cdn.example/v/720/index.m3u8", variants[1].URL)
}

func TestParseMasterEmpty(t *testing.T) {
	_, err := ParseMaster("#EXTM3U\n", nil)
	assert.Error(t, err)
}

func TestParseMedia(t *testing.T) {
	base, _ := url.Parse("https://cdn.example/v/720/index.m3u8")
	pl, err := ParseMedia(mediaFixture, base)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example/v/720/seg0.ts",
		"https://cdn.example/v/720/seg1.ts",
	}, pl.Segments)
	assert.Equal(t, "https://key.example/k/abc", pl.KeyURI)
	assert.Equal(t, "0x00000000000000000000000000000001", pl.KeyIV)
}

func TestParseMediaUnencrypted(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:4.0,\na.ts\n#EXT-X-ENDLIST\n"
	pl, err := ParseMedia(body, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.ts"}, pl.Segments)
	assert.Empty(t, pl.KeyURI)
}

func TestParseAttributesQuotedCommas(t *testing.T) {
	attrs := parseAttributes(`METHOD=AES-128,URI="https://k.example/key?a=1,b=2",IV=0xff`)
	assert.Equal(t, "AES-128", attrs["METHOD"])
	assert.Equal(t, "https://k.example/key?a=1,b=2", attrs["URI"])
	assert.Equal(t, "0xff", attrs["IV"])
}
