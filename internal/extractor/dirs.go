package extractor

import (
	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/utils"
)

const highSchoolStage = "高中"

// BuildTagPath turns textbook tag metadata into ordered directory segments:
// stage, grade, subject, edition, volume. Dimensions the API did not tag
// keep their placeholder and are then elided; an all-placeholder result
// collapses to the unclassified directory. High school material skips the
// grade segment since the stage already implies it. flat suppresses the
// hierarchy entirely.
func BuildTagPath(dirs config.DirectoryStructure, tags []tag, flat bool) []string {
	if flat {
		return nil
	}
	values := make(map[string]string, len(dirs.TextbookPathDefaults))
	for dim, def := range dirs.TextbookPathDefaults {
		values[dim] = def
	}
	for _, t := range tags {
		if _, known := values[t.TagDimensionID]; known && t.TagName != "" {
			values[t.TagDimensionID] = t.TagName
		}
	}
	placeholders := make(map[string]bool, len(dirs.TextbookPathDefaults))
	for _, def := range dirs.TextbookPathDefaults {
		placeholders[def] = true
	}
	highSchool := values["zxxxd"] == highSchoolStage

	var segments []string
	for _, dim := range dirs.TextbookPathOrder {
		val, ok := values[dim]
		if !ok || placeholders[val] {
			continue
		}
		if dim == "zxxnj" && highSchool {
			continue
		}
		segments = append(segments, utils.SanitizeName(val))
	}
	if len(segments) == 0 {
		log.Debug().Str("op", "extractor/dirs").Msg("no usable tags, using unclassified directory")
		return []string{config.UnclassifiedDir}
	}
	return segments
}
