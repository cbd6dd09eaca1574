package extractor

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// Filenames the platform serves that carry no information; they get replaced
// with the resource title.
var genericFilenameRes = []*regexp.Regexp{
	regexp.MustCompile(`^pdf\.pdf$`),
	regexp.MustCompile(`^document\.pdf$`),
	regexp.MustCompile(`^file\.pdf$`),
	regexp.MustCompile(`^\d+\.pdf$`),
	regexp.MustCompile(`^[a-f0-9]{32}\.pdf$`),
}

// textbookExtractor handles e-textbooks: the PDF volume itself plus the
// companion audio collection exposed by the relation_audios endpoint.
type textbookExtractor struct {
	env *Env
}

func newTextbookExtractor(env *Env) *textbookExtractor {
	return &textbookExtractor{env: env}
}

func (t *textbookExtractor) Extract(ctx context.Context, resourceID string) ([]utils.DownloadItem, error) {
	log.Info().Str("op", "extractor/textbook").Msgf("extracting textbook %s", resourceID)
	var data textbookDetails
	if err := t.env.fetchJSON(ctx, "TEXTBOOK_DETAILS", resourceID, &data); err != nil {
		return nil, err
	}
	baseDir := BuildTagPath(t.env.Config.DirectoryStructure, data.TagList, t.env.Flat)

	items, basename := t.pdfItems(&data, baseDir)
	audio, err := t.audioItems(ctx, resourceID, baseDir, basename)
	if err != nil {
		log.Warn().Str("op", "extractor/textbook").Err(err).Msg("companion audio lookup failed")
	} else {
		items = append(items, audio...)
	}
	log.Info().Str("op", "extractor/textbook").Msgf("textbook %s yielded %d files", resourceID, len(items))
	return items, nil
}

// pdfItems collects the PDF renditions. The second return value is the stem
// of the first PDF, used to name the companion audio directory.
func (t *textbookExtractor) pdfItems(data *textbookDetails, baseDir []string) ([]utils.DownloadItem, string) {
	var items []utils.DownloadItem
	basename := ""
	for _, ti := range data.TiItems {
		if !strings.EqualFold(ti.TiFormat, formatPDF) {
			continue
		}
		storage := ti.firstStorage()
		if storage == "" {
			continue
		}
		u, err := url.Parse(storage)
		if err != nil {
			continue
		}
		name := path.Base(u.Path)
		if isGenericFilename(name) {
			name = fmt.Sprintf("%s.pdf", utils.SanitizeName(t.title(data)))
		} else {
			name = utils.SanitizeName(name)
		}
		if basename == "" {
			basename = strings.TrimSuffix(name, filepath.Ext(name))
		}
		log.Debug().Str("op", "extractor/textbook").Msgf("pdf %q at %s", name, storage)
		items = append(items, utils.DownloadItem{
			ID:      data.ID,
			Kind:    utils.KindTextbook,
			Media:   utils.MediaDocument,
			Title:   t.title(data),
			URL:     storage,
			RelPath: filepath.Join(append(append([]string{}, baseDir...), name)...),
			Size:    ti.TiSize,
			MD5:     ti.TiMD5,
			Date:    data.UpdateTime.Time,
		})
	}
	return items, basename
}

func (t *textbookExtractor) title(data *textbookDetails) string {
	if data.GlobalTitle != nil && data.GlobalTitle.ZhCN != "" {
		return data.GlobalTitle.ZhCN
	}
	if data.Title != "" {
		return data.Title
	}
	return data.ID
}

// audioItems lists the companion audio tracks: zero-padded index prefixes,
// one file per format, source masters skipped, clip renditions only when
// nothing better exists.
func (t *textbookExtractor) audioItems(ctx context.Context, resourceID string, baseDir []string, basename string) ([]utils.DownloadItem, error) {
	var audio []audioRelationItem
	if err := t.env.fetchJSON(ctx, "TEXTBOOK_AUDIO", resourceID, &audio); err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		log.Info().Str("op", "extractor/textbook").Msgf("no companion audio for %s", resourceID)
		return nil, nil
	}
	audioDir := baseDir
	if basename != "" {
		audioDir = append(append([]string{}, baseDir...), fmt.Sprintf("%s - [audio]", basename))
	}
	width := len(fmt.Sprint(len(audio)))

	var items []utils.DownloadItem
	for i, entry := range audio {
		base := fmt.Sprintf("[%0*d] %s", width, i+1, utils.SanitizeName(entry.GlobalTitle.ZhCN))
		groups := groupByFormat(entry.TiItems)
		formats := make([]string, 0, len(groups))
		for format := range groups {
			formats = append(formats, format)
		}
		sort.Strings(formats)
		for _, format := range formats {
			group := groups[format]
			if t.env.AudioFormat != "" && t.env.AudioFormat != "all" && !strings.EqualFold(format, t.env.AudioFormat) {
				continue
			}
			ti := pickAudioItem(group)
			if ti == nil || ti.firstStorage() == "" {
				continue
			}
			items = append(items, utils.DownloadItem{
				ID:      resourceID,
				Kind:    utils.KindTextbook,
				Media:   utils.MediaAudio,
				Title:   entry.GlobalTitle.ZhCN,
				URL:     ti.firstStorage(),
				RelPath: filepath.Join(append(append([]string{}, audioDir...), fmt.Sprintf("%s.%s", base, format))...),
				Size:    ti.TiSize,
				MD5:     ti.TiMD5,
				Date:    entry.UpdateTime.Time,
			})
		}
	}
	return items, nil
}

func groupByFormat(items []tiItem) map[string][]tiItem {
	groups := make(map[string][]tiItem)
	for _, ti := range items {
		groups[ti.TiFormat] = append(groups[ti.TiFormat], ti)
	}
	return groups
}

// pickAudioItem drops source masters, then prefers a full rendition over
// clips.
func pickAudioItem(group []tiItem) *tiItem {
	var downloadable []tiItem
	for _, ti := range group {
		if ti.TiFileFlag == "source" {
			continue
		}
		downloadable = append(downloadable, ti)
	}
	if len(downloadable) == 0 {
		return nil
	}
	for i := range downloadable {
		if downloadable[i].TiFileFlag != "" && !strings.Contains(downloadable[i].TiFileFlag, "clip") {
			return &downloadable[i]
		}
	}
	return &downloadable[0]
}

func isGenericFilename(name string) bool {
	lower := strings.ToLower(name)
	for _, re := range genericFilenameRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
