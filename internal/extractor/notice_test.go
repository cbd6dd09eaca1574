package extractor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanxie/sed-dl/internal/utils"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = old }()
	fn()
	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

const twoVideoCourseFixture = `{
  "global_title": {"zh-CN": "两课时课程"},
  "custom_properties": {"lesson_teacher_ids": ["t1"]},
  "teacher_list": [{"id": "t1", "name": "张老师"}],
  "relations": {
    "national_course_resource": [
      {
        "global_title": {"zh-CN": "第一课时"},
        "custom_properties": {"alias_name": "课堂实录"},
        "resource_type_code": "assets_video",
        "ti_items": [
          {
            "ti_format": "m3u8",
            "ti_storages": ["https://cdn.example/v/a-720.m3u8"],
            "custom_properties": {"requirements": [{"name": "Height", "value": "720"}]}
          }
        ]
      },
      {
        "global_title": {"zh-CN": "第二课时"},
        "custom_properties": {"alias_name": "课堂实录"},
        "resource_type_code": "assets_video",
        "ti_items": [
          {
            "ti_format": "m3u8",
            "ti_storages": ["https://cdn.example/v/b-720.m3u8"],
            "custom_properties": {"requirements": [{"name": "Height", "value": "720"}]}
          }
        ]
      }
    ]
  }
}`

func TestCourseFallbackNoticeIsInfoAndPrintedOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/course/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(twoVideoCourseFixture))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env := testEnv(t, srv.URL)
	env.Quality = "480"
	ext, err := New(utils.KindCourse, env)
	require.NoError(t, err)

	var items []utils.DownloadItem
	out := captureStdout(t, func() {
		items, err = ext.Extract(context.Background(), testUUID)
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	// one notice for the whole resolution, not one per video
	assert.Equal(t, 1, strings.Count(out, "not available"))
	assert.Contains(t, out, "ℹ")
	assert.NotContains(t, out, "! quality")
}

func TestClassroomFallbackNoticeIsInfo(t *testing.T) {
	env := serveClassroom(t, classroomFixture)
	env.Quality = "360"
	ext, err := New(utils.KindClassroom, env)
	require.NoError(t, err)

	var items []utils.DownloadItem
	out := captureStdout(t, func() {
		items, err = ext.Extract(context.Background(), testUUID)
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, 1, strings.Count(out, "not available"))
	assert.Contains(t, out, "ℹ")
	assert.NotContains(t, out, "! quality")
}
