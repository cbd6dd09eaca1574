package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Token provenance labels, shown to the user so they know which layer won.
const (
	SourceFlag   = "command-line flag"
	SourceEnv    = "environment (ACCESS_TOKEN)"
	SourceConfig = "config file"
	SourceNone   = "not found"
)

// TokenGuide walks the user through extracting an access token from a
// logged-in browser session.
const TokenGuide = `
1. 登录平台: 使用 Chrome / Edge / Firefox 浏览器登录。
   (登录地址: https://auth.smartedu.cn/uias/login)
2. 打开开发者工具:
   - 在 Windows / Linux 上: 按 F12 或 Ctrl+Shift+I
   - 在 macOS 上: 按 Cmd+Opt+I (⌘⌥I)
3. 切换到“控制台” (Console) 标签页。
4. 复制并粘贴以下代码到控制台，然后按 Enter 运行：
----------------------------------------------
copy(
  JSON.parse(
    JSON.parse(
      localStorage.getItem(
        Object.keys(localStorage)
          .find(i => i.startsWith("ND_UC_AUTH"))
      )
    ).value
  ).access_token
)
----------------------------------------------
5. 此时 Token 已自动复制到剪贴板，可以直接粘贴使用。`

// SaveToken persists a token into the config file for later runs.
func SaveToken(token string) error {
	if token == "" {
		return nil
	}
	path, err := Path()
	if err != nil {
		return err
	}
	cfg, err := LoadOrCreate()
	if err != nil {
		return err
	}
	cfg.AccessToken = token
	if err := write(path, cfg); err != nil {
		return err
	}
	log.Debug().Str("op", "config/token").Msgf("token saved to %s", path)
	return nil
}

// LoadTokenFromConfig returns the persisted token, or "" when absent.
func LoadTokenFromConfig() string {
	cfg, err := LoadOrCreate()
	if err != nil {
		return ""
	}
	return cfg.AccessToken
}

// ResolveToken picks a token by precedence: explicit flag, then the
// ACCESS_TOKEN environment variable, then the config file. It returns the
// token and a provenance label.
func ResolveToken(flagToken string) (string, string) {
	if flagToken != "" {
		log.Debug().Str("op", "config/token").Msg("using token from command-line flag")
		return flagToken, SourceFlag
	}
	if env := os.Getenv("ACCESS_TOKEN"); env != "" {
		log.Debug().Str("op", "config/token").Msg("using token from ACCESS_TOKEN")
		return env, SourceEnv
	}
	if tok := LoadTokenFromConfig(); tok != "" {
		log.Debug().Str("op", "config/token").Msg("using token from config file")
		return tok, SourceConfig
	}
	return "", SourceNone
}
