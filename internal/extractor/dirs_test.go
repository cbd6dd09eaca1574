package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yuanxie/sed-dl/internal/config"
)

func TestBuildTagPath(t *testing.T) {
	dirs := config.Default().DirectoryStructure
	tags := []tag{
		{TagDimensionID: "zxxxd", TagName: "小学"},
		{TagDimensionID: "zxxnj", TagName: "三年级"},
		{TagDimensionID: "zxxxk", TagName: "数学"},
	}
	got := BuildTagPath(dirs, tags, false)
	assert.Equal(t, []string{"小学", "三年级", "数学"}, got)
}

func TestBuildTagPathElidesPlaceholders(t *testing.T) {
	dirs := config.Default().DirectoryStructure
	tags := []tag{{TagDimensionID: "zxxxk", TagName: "语文"}}
	got := BuildTagPath(dirs, tags, false)
	assert.Equal(t, []string{"语文"}, got)
}

func TestBuildTagPathHighSchoolSkipsGrade(t *testing.T) {
	dirs := config.Default().DirectoryStructure
	tags := []tag{
		{TagDimensionID: "zxxxd", TagName: "高中"},
		{TagDimensionID: "zxxnj", TagName: "高一"},
		{TagDimensionID: "zxxxk", TagName: "物理"},
	}
	got := BuildTagPath(dirs, tags, false)
	assert.Equal(t, []string{"高中", "物理"}, got)
}

func TestBuildTagPathEmpty(t *testing.T) {
	dirs := config.Default().DirectoryStructure
	assert.Equal(t, []string{config.UnclassifiedDir}, BuildTagPath(dirs, nil, false))
	assert.Nil(t, BuildTagPath(dirs, nil, true))
}
