package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ConfigDirName   = ".sed-dl"
	ConfigFileName  = "config.json"
	DefaultSaveDir  = "downloads"
	UnclassifiedDir = "未分类资源"
)

// Extractor type names as stored in the config file.
const (
	ExtractorTextbook      = "Textbook"
	ExtractorCourse        = "Course"
	ExtractorSyncClassroom = "SyncClassroom"
)

// Endpoint maps a URL path fragment to the query parameter carrying the
// resource ID and the extractor that handles it.
type Endpoint struct {
	IDParam     string `json:"id_param"`
	Extractor   string `json:"extractor"`
	TemplateKey string `json:"main_template_key"`
}

type Network struct {
	ServerPrefixes     []string `json:"server_prefixes"`
	ConnectTimeoutSecs int      `json:"connect_timeout_secs"`
	TimeoutSecs        int      `json:"timeout_secs"`
	MaxRetries         int      `json:"max_retries"`
}

// DirectoryStructure controls how textbook tag metadata becomes a directory
// hierarchy: which tag dimensions, in what order, and the placeholder used
// when a dimension is missing.
type DirectoryStructure struct {
	TextbookPathOrder    []string          `json:"textbook_path_order"`
	TextbookPathDefaults map[string]string `json:"textbook_path_defaults"`
}

// External is the persisted configuration at ~/.sed-dl/config.json. It is
// created with defaults on first run so users can tweak endpoints without
// rebuilding.
type External struct {
	AccessToken        string              `json:"accesstoken,omitempty"`
	Network            Network             `json:"network"`
	URLTemplates       map[string]string   `json:"url_templates"`
	APIEndpoints       map[string]Endpoint `json:"api_endpoints"`
	DirectoryStructure DirectoryStructure  `json:"directory_structure"`
}

func Default() *External {
	return &External{
		Network: Network{
			ServerPrefixes:     []string{"s-file-1", "s-file-2", "s-file-3"},
			ConnectTimeoutSecs: 10,
			TimeoutSecs:        60,
			MaxRetries:         3,
		},
		URLTemplates: map[string]string{
			"TEXTBOOK_DETAILS": "https://{prefix}.ykt.cbern.com.cn/zxx/ndrv2/resources/tch_material/details/{resource_id}.json",
			"TEXTBOOK_AUDIO":   "https://{prefix}.ykt.cbern.com.cn/zxx/ndrs/resources/{resource_id}/relation_audios.json",
			"COURSE_QUALITY":   "https://{prefix}.ykt.cbern.com.cn/zxx/ndrv2/resources/{resource_id}.json",
			"COURSE_SYNC":      "https://{prefix}.ykt.cbern.com.cn/zxx/ndrv2/national_lesson/resources/details/{resource_id}.json",
			"CHAPTER_TREE":     "https://{prefix}.ykt.cbern.com.cn/zxx/ndrv2/national_lesson/trees/{tree_id}.json",
		},
		APIEndpoints: map[string]Endpoint{
			"tchMaterial": {
				IDParam:     "contentId",
				Extractor:   ExtractorTextbook,
				TemplateKey: "TEXTBOOK_DETAILS",
			},
			"qualityCourse": {
				IDParam:     "courseId",
				Extractor:   ExtractorCourse,
				TemplateKey: "COURSE_QUALITY",
			},
			"syncClassroom/classActivity": {
				IDParam:     "activityId",
				Extractor:   ExtractorSyncClassroom,
				TemplateKey: "COURSE_SYNC",
			},
		},
		DirectoryStructure: DirectoryStructure{
			TextbookPathOrder: []string{"zxxxd", "zxxnj", "zxxxk", "zxxbb", "zxxcc"},
			TextbookPathDefaults: map[string]string{
				"zxxxd": "未知学段",
				"zxxnj": "未知年级",
				"zxxxk": "未知学科",
				"zxxbb": "未知版本",
				"zxxcc": "未知册次",
			},
		},
	}
}

// Path returns the config file location under the user's home directory.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to locate home directory: %w", err)
	}
	return filepath.Join(home, ConfigDirName, ConfigFileName), nil
}

// LoadOrCreate reads the config file, writing a default one first if none
// exists yet.
func LoadOrCreate() (*External, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Debug().Str("op", "config/load").Msgf("no config at %s, writing defaults", path)
		cfg := Default()
		if err := write(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg External
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

func write(path string, cfg *External) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

func (c *External) ConnectTimeout() time.Duration {
	if c.Network.ConnectTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Network.ConnectTimeoutSecs) * time.Second
}

func (c *External) Timeout() time.Duration {
	if c.Network.TimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Network.TimeoutSecs) * time.Second
}

func (c *External) MaxRetries() int {
	if c.Network.MaxRetries <= 0 {
		return 3
	}
	return c.Network.MaxRetries
}

func (c *External) Prefixes() []string {
	if len(c.Network.ServerPrefixes) == 0 {
		return []string{"s-file-1"}
	}
	return c.Network.ServerPrefixes
}

// ExpandTemplate renders a URL template with the given server prefix and
// resource ID. Templates use {prefix} and {resource_id} or {tree_id} slots.
func (c *External) ExpandTemplate(key, prefix, id string) (string, error) {
	tpl, ok := c.URLTemplates[key]
	if !ok {
		return "", fmt.Errorf("url template %q not configured", key)
	}
	s := strings.ReplaceAll(tpl, "{prefix}", prefix)
	s = strings.ReplaceAll(s, "{resource_id}", id)
	s = strings.ReplaceAll(s, "{tree_id}", id)
	return s, nil
}
