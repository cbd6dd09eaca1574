package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/stream"
	"github.com/yuanxie/sed-dl/internal/utils"
)

// courseExtractor handles quality-course resources: per-lesson videos in
// several renditions plus courseware documents, filed under the teaching
// material's chapter hierarchy.
type courseExtractor struct {
	env      *Env
	chapters *chapterResolver

	fellBackNoted bool
}

func newCourseExtractor(env *Env) *courseExtractor {
	return &courseExtractor{env: env, chapters: newChapterResolver(env)}
}

func (c *courseExtractor) Extract(ctx context.Context, resourceID string) ([]utils.DownloadItem, error) {
	log.Info().Str("op", "extractor/course").Msgf("extracting course %s", resourceID)
	var data courseDetails
	if err := c.env.fetchJSON(ctx, "COURSE_QUALITY", resourceID, &data); err != nil {
		return nil, err
	}
	resources := data.Relations.Resources
	if len(resources) == 0 {
		log.Warn().Str("op", "extractor/course").Msgf("course %s has no resources", resourceID)
		return nil, nil
	}

	baseDir := c.baseDirectory(ctx, &data)
	teachers := c.teacherMap(&data)

	var items []utils.DownloadItem
	for i, res := range resources {
		teacher := teachers[i]
		if teacher == "" {
			teacher = config.UnclassifiedDir
		}
		items = append(items, c.resourceItems(resourceID, &res, baseDir, teacher)...)
	}
	log.Info().Str("op", "extractor/course").Msgf("course %s yielded %d files", resourceID, len(items))
	return items, nil
}

// baseDirectory combines the textbook tag path, the chapter path from the
// teaching-material tree, and the course title. A chapter tail equal to the
// course title is dropped to avoid titled directories nesting a same-named
// child.
func (c *courseExtractor) baseDirectory(ctx context.Context, data *courseDetails) []string {
	if c.env.Flat {
		return nil
	}
	dir := BuildTagPath(c.env.Config.DirectoryStructure, data.TagList, false)

	var chapterPath []string
	if tm := data.CustomProperties.TeachingMaterialInfo; tm != nil && len(data.ChapterPaths) > 0 {
		if path, err := c.chapters.ChapterPath(ctx, tm.ID, data.ChapterPaths[0]); err == nil {
			chapterPath = path
		} else {
			log.Warn().Str("op", "extractor/course").Err(err).Msg("chapter path resolution failed")
		}
	}
	title := utils.SanitizeName(data.GlobalTitle.ZhCN)
	if n := len(chapterPath); n > 0 && chapterPath[n-1] == title {
		chapterPath = chapterPath[:n-1]
	}
	dir = append(dir, chapterPath...)
	return append(dir, title)
}

// teacherMap associates resource indices with teacher names, preferring the
// explicit resource_structure relations and falling back to the course-level
// lesson_teacher_ids.
func (c *courseExtractor) teacherMap(data *courseDetails) map[int]string {
	names := make(map[string]string, len(data.TeacherList))
	for _, t := range data.TeacherList {
		names[t.ID] = t.Name
	}
	joined := func(ids []string) string {
		var out string
		for _, id := range ids {
			if name, ok := names[id]; ok {
				if out != "" {
					out += ", "
				}
				out += name
			}
		}
		if out == "" {
			return config.UnclassifiedDir
		}
		return out
	}
	total := len(data.Relations.Resources)
	result := make(map[int]string)
	if data.ResourceStructure != nil {
		for _, rel := range data.ResourceStructure.Relations {
			if len(rel.CustomProperties.TeacherIDs) == 0 || len(rel.ResRef) == 0 {
				continue
			}
			teacher := joined(rel.CustomProperties.TeacherIDs)
			for _, idx := range expandRefs(rel.ResRef, total) {
				result[idx] = teacher
			}
		}
		if len(result) > 0 {
			log.Debug().Str("op", "extractor/course").Msg("teacher map built from resource_structure")
			return result
		}
	}
	if ids := data.CustomProperties.LessonTeacherIDs; len(ids) > 0 {
		teacher := joined(ids)
		for i := 0; i < total; i++ {
			result[i] = teacher
		}
		log.Debug().Str("op", "extractor/course").Msg("teacher map built from lesson_teacher_ids")
		return result
	}
	log.Warn().Str("op", "extractor/course").Msg("no teacher association found in response")
	return result
}

func (c *courseExtractor) resourceItems(courseID string, res *courseResource, baseDir []string, teacher string) []utils.DownloadItem {
	title := utils.SanitizeName(res.GlobalTitle.ZhCN)
	typeName := utils.SanitizeName(res.CustomProperties.AliasName)

	if res.ResourceTypeCode == typeAssetsVideo {
		item, ok := c.videoItem(courseID, res, baseDir, title, typeName, teacher)
		if !ok {
			return nil
		}
		return []utils.DownloadItem{item}
	}
	switch res.ResourceTypeCode {
	case typeAssetsDocument, typeCoursewares, typeLessonPlan:
		if item, ok := c.documentItem(courseID, res, baseDir, title, typeName, teacher); ok {
			return []utils.DownloadItem{item}
		}
	}
	return nil
}

// videoItem picks the rendition matching the quality policy. An absent exact
// height falls back to the nearest available one with a single notice.
func (c *courseExtractor) videoItem(courseID string, res *courseResource, baseDir []string, title, typeName, teacher string) (utils.DownloadItem, bool) {
	variants := videoVariants(res.TiItems)
	if len(variants) == 0 {
		return utils.DownloadItem{}, false
	}
	chosen, fellBack, err := stream.SelectVariant(variants, c.env.Quality)
	if err != nil {
		log.Warn().Str("op", "extractor/course").Err(err).Msg("quality selection failed")
		return utils.DownloadItem{}, false
	}
	if fellBack && !c.fellBackNoted {
		c.fellBackNoted = true
		output.PrintInfo(fmt.Sprintf("quality %q not available, using %dp", c.env.Quality, chosen.Height))
	}

	var size int64
	for _, ti := range res.TiItems {
		if ti.firstStorage() == chosen.URL {
			if v, err := strconv.ParseInt(ti.requirementValue("total_size"), 10, 64); err == nil {
				size = v
			}
		}
	}
	filename := fmt.Sprintf("%s - %s [%dp] - [%s].ts", title, typeName, chosen.Height, teacher)
	quality := make([]utils.QualityVariant, 0, len(variants))
	for _, v := range variants {
		quality = append(quality, utils.QualityVariant{Height: v.Height, URL: v.URL})
	}
	return utils.DownloadItem{
		ID:       courseID,
		Kind:     utils.KindCourse,
		Media:    utils.MediaVideo,
		Title:    res.GlobalTitle.ZhCN,
		URL:      chosen.URL,
		RelPath:  filepath.Join(append(append([]string{}, baseDir...), utils.SanitizeName(filename))...),
		Size:     size,
		Date:     res.UpdateTime.Time,
		Variants: quality,
	}, true
}

func (c *courseExtractor) documentItem(courseID string, res *courseResource, baseDir []string, title, typeName, teacher string) (utils.DownloadItem, bool) {
	ti := bestDocumentItem(res.TiItems)
	if ti == nil || ti.firstStorage() == "" {
		return utils.DownloadItem{}, false
	}
	filename := fmt.Sprintf("%s - %s - [%s].%s", title, typeName, teacher, ti.TiFormat)
	return utils.DownloadItem{
		ID:      courseID,
		Kind:    utils.KindCourse,
		Media:   utils.MediaDocument,
		Title:   res.GlobalTitle.ZhCN,
		URL:     ti.firstStorage(),
		RelPath: filepath.Join(append(append([]string{}, baseDir...), utils.SanitizeName(filename))...),
		Size:    ti.TiSize,
		MD5:     ti.TiMD5,
		Date:    res.UpdateTime.Time,
	}, true
}

// videoVariants lists the m3u8 renditions of a resource, best first,
// deduplicated by URL.
func videoVariants(items []tiItem) []stream.Variant {
	var variants []stream.Variant
	seen := make(map[string]bool)
	for _, ti := range items {
		if ti.TiFormat != formatM3U8 {
			continue
		}
		u := ti.firstStorage()
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		height, _ := strconv.Atoi(ti.requirementValue("Height"))
		variants = append(variants, stream.Variant{Height: height, URL: u})
	}
	stream.SortVariants(variants)
	return variants
}

// bestDocumentItem prefers the pdf rendition and falls back to the first
// item that has a storage URL at all.
func bestDocumentItem(items []tiItem) *tiItem {
	for i := range items {
		if items[i].TiFormat == formatPDF {
			return &items[i]
		}
	}
	for i := range items {
		if len(items[i].TiStorages) > 0 {
			return &items[i]
		}
	}
	return nil
}
