package extractor

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Resource type codes and formats as the platform API reports them.
const (
	typeAssetsVideo    = "assets_video"
	typeAssetsDocument = "assets_document"
	typeCoursewares    = "coursewares"
	typeLessonPlan     = "lesson_plandesign"

	formatPDF  = "pdf"
	formatM3U8 = "m3u8"
)

type globalTitle struct {
	ZhCN string `json:"zh-CN"`
}

type requirement struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type tiItemProps struct {
	Requirements []requirement `json:"requirements"`
}

type tiItem struct {
	TiFormat   string       `json:"ti_format"`
	TiStorages []string     `json:"ti_storages"`
	TiMD5      string       `json:"ti_md5"`
	TiSize     int64        `json:"ti_size"`
	TiFileFlag string       `json:"ti_file_flag"`
	Props      *tiItemProps `json:"custom_properties"`
}

// requirementValue reads a named entry from the item's requirements list,
// where the API stashes stream properties like Height and total_size.
func (t *tiItem) requirementValue(name string) string {
	if t.Props == nil {
		return ""
	}
	for _, r := range t.Props.Requirements {
		if r.Name == name {
			return r.Value
		}
	}
	return ""
}

func (t *tiItem) firstStorage() string {
	if len(t.TiStorages) == 0 {
		return ""
	}
	return t.TiStorages[0]
}

type tag struct {
	TagDimensionID string `json:"tag_dimension_id"`
	TagName        string `json:"tag_name"`
}

// apiTime accepts either an RFC3339 string or epoch milliseconds.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			t.Time = parsed
		}
		return nil
	}
	if ms, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		t.Time = time.UnixMilli(ms)
	}
	return nil
}

type teacher struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// relations carries the resource list under one of two alias keys depending
// on the endpoint.
type relations struct {
	Resources []courseResource
}

func (r *relations) UnmarshalJSON(data []byte) error {
	var raw struct {
		National []courseResource `json:"national_course_resource"`
		Course   []courseResource `json:"course_resource"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.National != nil {
		r.Resources = raw.National
	} else {
		r.Resources = raw.Course
	}
	return nil
}

type courseResource struct {
	GlobalTitle      globalTitle `json:"global_title"`
	CustomProperties struct {
		AliasName string `json:"alias_name"`
	} `json:"custom_properties"`
	UpdateTime       apiTime  `json:"update_time"`
	ResourceTypeCode string   `json:"resource_type_code"`
	TiItems          []tiItem `json:"ti_items"`
}

type structureRelation struct {
	Title            string   `json:"title"`
	ResRef           []string `json:"res_ref"`
	CustomProperties struct {
		TeacherIDs []string `json:"teacher_ids"`
	} `json:"custom_properties"`
}

type resourceStructure struct {
	Relations []structureRelation `json:"relations"`
}

type courseDetails struct {
	GlobalTitle      globalTitle `json:"global_title"`
	TagList          []tag       `json:"tag_list"`
	CustomProperties struct {
		TeachingMaterialInfo *struct {
			ID string `json:"id"`
		} `json:"teachingmaterial_info"`
		LessonTeacherIDs []string `json:"lesson_teacher_ids"`
	} `json:"custom_properties"`
	ChapterPaths      []string           `json:"chapter_paths"`
	TeacherList       []teacher          `json:"teacher_list"`
	Relations         relations          `json:"relations"`
	ResourceStructure *resourceStructure `json:"resource_structure"`
}

type syncClassroomDetails struct {
	GlobalTitle       globalTitle        `json:"global_title"`
	TeacherList       []teacher          `json:"teacher_list"`
	Relations         relations          `json:"relations"`
	ResourceStructure *resourceStructure `json:"resource_structure"`
}

type textbookDetails struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	GlobalTitle *globalTitle `json:"global_title"`
	TiItems     []tiItem     `json:"ti_items"`
	TagList     []tag        `json:"tag_list"`
	UpdateTime  apiTime      `json:"update_time"`
}

type audioRelationItem struct {
	GlobalTitle globalTitle `json:"global_title"`
	TiItems     []tiItem    `json:"ti_items"`
	UpdateTime  apiTime     `json:"update_time"`
}
