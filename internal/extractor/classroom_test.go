package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanxie/sed-dl/internal/utils"
)

const classroomFixture = `{
  "global_title": {"zh-CN": "圆的面积"},
  "teacher_list": [
    {"id": "t1", "name": "李老师"},
    {"id": "t2", "name": "王老师"}
  ],
  "relations": {
    "course_resource": [
      {
        "global_title": {"zh-CN": "第一课时"},
        "custom_properties": {"alias_name": "课堂实录"},
        "resource_type_code": "assets_video",
        "ti_items": [
          {
            "ti_format": "m3u8",
            "ti_storages": ["https://cdn.example/c/720.m3u8"],
            "custom_properties": {"requirements": [
              {"name": "Height", "value": "720"},
              {"name": "total_size", "value": "555"}
            ]}
          }
        ]
      },
      {
        "global_title": {"zh-CN": "教学设计"},
        "custom_properties": {"alias_name": "教案"},
        "resource_type_code": "lesson_plandesign",
        "ti_items": [
          {"ti_format": "pdf", "ti_storages": ["https://cdn.example/c/plan.pdf"], "ti_size": 33, "ti_md5": "cc"}
        ]
      }
    ]
  },
  "resource_structure": {
    "relations": [
      {"title": "第一课时", "res_ref": ["[0]"], "custom_properties": {"teacher_ids": ["t1"]}},
      {"title": "第二课时", "res_ref": ["[1]"], "custom_properties": {"teacher_ids": ["t2"]}}
    ]
  }
}`

func serveClassroom(t *testing.T, fixture string) *Env {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sync/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixture))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return testEnv(t, srv.URL)
}

func TestClassroomExtract(t *testing.T) {
	env := serveClassroom(t, classroomFixture)
	ext, err := New(utils.KindClassroom, env)
	require.NoError(t, err)

	items, err := ext.Extract(context.Background(), testUUID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	video := items[0]
	assert.Equal(t, utils.MediaVideo, video.Media)
	// two lessons, so the lesson title joins the activity title
	assert.Contains(t, video.RelPath, "圆的面积[第一课时]")
	assert.Contains(t, video.RelPath, "[720p] - [李老师].ts")
	assert.Equal(t, int64(555), video.Size)

	doc := items[1]
	assert.Equal(t, utils.MediaDocument, doc.Media)
	assert.Contains(t, doc.RelPath, "圆的面积[第二课时]")
	assert.Contains(t, doc.RelPath, "[王老师].pdf")
	assert.Equal(t, "cc", doc.MD5)
}

func TestClassroomSingleLessonOmitsLessonTitle(t *testing.T) {
	single := `{
  "global_title": {"zh-CN": "圆的面积"},
  "teacher_list": [],
  "relations": {
    "course_resource": [
      {
        "global_title": {"zh-CN": "教学设计"},
        "custom_properties": {"alias_name": "教案"},
        "resource_type_code": "lesson_plandesign",
        "ti_items": [
          {"ti_format": "pdf", "ti_storages": ["https://cdn.example/c/plan.pdf"]}
        ]
      }
    ]
  },
  "resource_structure": {
    "relations": [
      {"title": "唯一课时", "res_ref": ["[*]"], "custom_properties": {}}
    ]
  }
}`
	env := serveClassroom(t, single)
	ext, err := New(utils.KindClassroom, env)
	require.NoError(t, err)

	items, err := ext.Extract(context.Background(), testUUID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotContains(t, items[0].RelPath, "[唯一课时]")
	// no teacher association falls back to the placeholder
	assert.Contains(t, items[0].RelPath, "[未知教师]")
}
