package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9982"
	defaultAppLogPath   = ""
	defaultAppLLMLog    = ""
	defaultArticleChars = 4000
	defaultArticleFetch = 15
	defaultArticleUA    = "Mozilla/5.0"
	defaultQueryConnect = 10
	defaultQueryRead    = 30
	defaultQueryRetries = 2
	defaultQueryBackoff = 2
	defaultQueryTemp    = 1.0
	defaultQueryTokens  = 1000
	defaultMaxWorkers   = 8
	defaultPromptDelay  = 1
	defaultOutputDir    = "out"
	defaultCatalogPath  = "configs/targets.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Article.applyDefaults(keys)
	c.Query.applyDefaults(keys)
	c.Dispatch.applyDefaults(keys)
	c.Report.applyDefaults(keys)
	c.Targets.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.llm_log_path", &a.LLMLog, defaultAppLLMLog),
	)
}

func (a *ArticleConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "article.max_chars",
			need:  func() bool { return a.MaxChars <= 0 },
			apply: func() { a.MaxChars = defaultArticleChars },
		},
		fieldDefault{
			key:   "article.fetch_timeout_seconds",
			need:  func() bool { return a.FetchTimeoutSeconds <= 0 },
			apply: func() { a.FetchTimeoutSeconds = defaultArticleFetch },
		},
		stringFieldDefault("article.user_agent", &a.UserAgent, defaultArticleUA),
	)
}

func (q *QueryConfig) applyDefaults(keys keySet) {
	if q == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "query.connect_timeout_seconds",
			need:  func() bool { return q.ConnectTimeoutSeconds <= 0 },
			apply: func() { q.ConnectTimeoutSeconds = defaultQueryConnect },
		},
		fieldDefault{
			key:   "query.read_timeout_seconds",
			need:  func() bool { return q.ReadTimeoutSeconds <= 0 },
			apply: func() { q.ReadTimeoutSeconds = defaultQueryRead },
		},
		fieldDefault{
			key:   "query.max_retries",
			need:  func() bool { return q.MaxRetries < 0 },
			apply: func() { q.MaxRetries = defaultQueryRetries },
		},
		fieldDefault{
			key:   "query.backoff_base_seconds",
			need:  func() bool { return q.BackoffBaseSeconds <= 0 },
			apply: func() { q.BackoffBaseSeconds = defaultQueryBackoff },
		},
		fieldDefault{
			key:   "query.temperature",
			need:  func() bool { return q.Temperature == 0 },
			apply: func() { q.Temperature = defaultQueryTemp },
		},
		fieldDefault{
			key:   "query.max_tokens",
			need:  func() bool { return q.MaxTokens <= 0 },
			apply: func() { q.MaxTokens = defaultQueryTokens },
		},
	)
}

func (d *DispatchConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "dispatch.max_workers",
			need:  func() bool { return d.MaxWorkers <= 0 },
			apply: func() { d.MaxWorkers = defaultMaxWorkers },
		},
		fieldDefault{
			key:   "dispatch.prompt_delay_seconds",
			need:  func() bool { return d.PromptDelaySeconds < 0 },
			apply: func() { d.PromptDelaySeconds = defaultPromptDelay },
		},
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.output_dir", &r.OutputDir, defaultOutputDir),
	)
}

func (t *TargetsConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("targets.catalog_path", &t.CatalogPath, defaultCatalogPath),
	)
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
