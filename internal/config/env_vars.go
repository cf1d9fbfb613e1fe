package config

import (
	"strings"

	"github.com/knadh/koanf/v2"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetBaseURL() string
	GetRefreshPath() string
	GetLoginPaths() []string
	GetBridgePath() string
}

type EnvVars struct {
	k *koanf.Koanf
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.k.String("app.name")
}

func (e EnvVars) GetEnv() string {
	env := e.k.String("app.env")
	if env == "" {
		return "DEV"
	}
	return strings.ToUpper(env)
}

func (e EnvVars) GetLogLevel() string {
	return e.k.String("log.level")
}

type API struct {
	k *koanf.Koanf
}

var _ APIConfig = API{}

// GetBaseURL returns the backend base URL without a trailing slash
func (a API) GetBaseURL() string {
	return strings.TrimRight(a.k.String("api.base_url"), "/")
}

func (a API) GetRefreshPath() string {
	return a.k.String("api.refresh_path")
}

// GetLoginPaths returns the endpoints whose 401 means bad credentials
// rather than an expired token. Accepts a YAML list or a comma separated string.
func (a API) GetLoginPaths() []string {
	var raw []string
	switch v := a.k.Get("api.login_paths").(type) {
	case string:
		raw = strings.Split(v, ",")
	default:
		raw = a.k.Strings("api.login_paths")
	}

	paths := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func (a API) GetBridgePath() string {
	return a.k.String("api.bridge_path")
}
