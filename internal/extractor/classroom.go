package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/stream"
	"github.com/yuanxie/sed-dl/internal/utils"
)

const unknownTeacher = "未知教师"

// classroomExtractor handles sync-classroom activities: lessons reference
// resources through res_ref indices, and filenames carry the lesson title
// when the activity spans more than one lesson.
type classroomExtractor struct {
	env *Env

	fellBackNoted bool
}

func newClassroomExtractor(env *Env) *classroomExtractor {
	return &classroomExtractor{env: env}
}

func (s *classroomExtractor) Extract(ctx context.Context, resourceID string) ([]utils.DownloadItem, error) {
	log.Info().Str("op", "extractor/classroom").Msgf("extracting classroom activity %s", resourceID)
	var data syncClassroomDetails
	if err := s.env.fetchJSON(ctx, "COURSE_SYNC", resourceID, &data); err != nil {
		return nil, err
	}
	if data.ResourceStructure == nil || len(data.ResourceStructure.Relations) == 0 {
		log.Warn().Str("op", "extractor/classroom").Msgf("activity %s has no lesson structure", resourceID)
		return nil, nil
	}

	teacherByID := make(map[string]string, len(data.TeacherList))
	for _, t := range data.TeacherList {
		teacherByID[t.ID] = t.Name
	}
	resources := data.Relations.Resources
	lessons := data.ResourceStructure.Relations
	useLessonTitle := len(lessons) > 1

	var items []utils.DownloadItem
	for _, lesson := range lessons {
		prefix := data.GlobalTitle.ZhCN
		if useLessonTitle {
			prefix = fmt.Sprintf("%s[%s]", data.GlobalTitle.ZhCN, lesson.Title)
		}
		teacher := unknownTeacher
		if ids := lesson.CustomProperties.TeacherIDs; len(ids) > 0 {
			if name, ok := teacherByID[ids[0]]; ok {
				teacher = name
			}
		}
		for _, idx := range expandRefs(lesson.ResRef, len(resources)) {
			items = append(items, s.resourceItems(resourceID, &resources[idx], prefix, teacher)...)
		}
	}
	log.Info().Str("op", "extractor/classroom").Msgf("activity %s yielded %d files", resourceID, len(items))
	return items, nil
}

func (s *classroomExtractor) resourceItems(activityID string, res *courseResource, prefix, teacher string) []utils.DownloadItem {
	baseName := fmt.Sprintf("%s - %s", utils.SanitizeName(prefix), utils.SanitizeName(res.CustomProperties.AliasName))

	switch res.ResourceTypeCode {
	case typeAssetsVideo:
		return s.videoItems(activityID, res, baseName, teacher)
	case typeAssetsDocument, typeCoursewares, typeLessonPlan:
		// Document pick keys off the stable ti_format tag; the file-flag
		// field changes meaning across endpoint versions.
		ti := bestDocumentItem(res.TiItems)
		if ti == nil || ti.firstStorage() == "" {
			log.Info().Str("op", "extractor/classroom").Msgf("no downloadable document in %q", res.GlobalTitle.ZhCN)
			return nil
		}
		filename := fmt.Sprintf("%s - [%s].%s", baseName, teacher, ti.TiFormat)
		return []utils.DownloadItem{{
			ID:      activityID,
			Kind:    utils.KindClassroom,
			Media:   utils.MediaDocument,
			Title:   res.GlobalTitle.ZhCN,
			URL:     ti.firstStorage(),
			RelPath: utils.SanitizeName(filename),
			Size:    ti.TiSize,
			MD5:     ti.TiMD5,
			Date:    res.UpdateTime.Time,
		}}
	}
	return nil
}

func (s *classroomExtractor) videoItems(activityID string, res *courseResource, baseName, teacher string) []utils.DownloadItem {
	variants := videoVariants(res.TiItems)
	if len(variants) == 0 {
		return nil
	}
	chosen, fellBack, err := stream.SelectVariant(variants, s.env.Quality)
	if err != nil {
		log.Warn().Str("op", "extractor/classroom").Err(err).Msg("quality selection failed")
		return nil
	}
	if fellBack && !s.fellBackNoted {
		s.fellBackNoted = true
		output.PrintInfo(fmt.Sprintf("quality %q not available, using %dp", s.env.Quality, chosen.Height))
	}
	var size int64
	for _, ti := range res.TiItems {
		if ti.firstStorage() == chosen.URL {
			if v, err := strconv.ParseInt(ti.requirementValue("total_size"), 10, 64); err == nil {
				size = v
			}
		}
	}
	filename := fmt.Sprintf("%s [%dp] - [%s].ts", baseName, chosen.Height, teacher)
	quality := make([]utils.QualityVariant, 0, len(variants))
	for _, v := range variants {
		quality = append(quality, utils.QualityVariant{Height: v.Height, URL: v.URL})
	}
	return []utils.DownloadItem{{
		ID:       activityID,
		Kind:     utils.KindClassroom,
		Media:    utils.MediaVideo,
		Title:    res.GlobalTitle.ZhCN,
		URL:      chosen.URL,
		RelPath:  filepath.Join(utils.SanitizeName(filename)),
		Size:     size,
		Date:     res.UpdateTime.Time,
		Variants: quality,
	}}
}
