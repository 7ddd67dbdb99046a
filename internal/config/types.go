package config

import "strings"

// Config 是 censcope 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Article  ArticleConfig  `toml:"article"`
	Query    QueryConfig    `toml:"query"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Report   ReportConfig   `toml:"report"`
	Targets  TargetsConfig  `toml:"targets"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	LLMLog   string `toml:"llm_log_path"`
	LLMDump  bool   `toml:"llm_dump_payload"`
}

// ArticleConfig 控制文章抓取与清洗。
type ArticleConfig struct {
	// MaxChars 为清洗后正文的截断阈值，按字符（rune）计，不是字节
	//（历史版本在 4000/5000 间摇摆，这里作为配置项而非写死）。
	MaxChars            int    `toml:"max_chars"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	UserAgent           string `toml:"user_agent"`
}

// QueryConfig 控制单次模型查询的超时、重试与生成参数。
type QueryConfig struct {
	ConnectTimeoutSeconds int     `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int     `toml:"read_timeout_seconds"`
	MaxRetries            int     `toml:"max_retries"`
	BackoffBaseSeconds    int     `toml:"backoff_base_seconds"`
	Temperature           float64 `toml:"temperature"`
	MaxTokens             int     `toml:"max_tokens"`
}

// DispatchConfig 控制并发调度。
type DispatchConfig struct {
	MaxWorkers         int `toml:"max_workers"`
	PromptDelaySeconds int `toml:"prompt_delay_seconds"`
}

// ReportConfig 控制报告产出。
type ReportConfig struct {
	OutputDir       string `toml:"output_dir"`
	SourceTag       string `toml:"source_tag"`
	NoticeImagePath string `toml:"notice_image_path"`
}

// TargetsConfig 指定供应商目录文件（可热更新）。
type TargetsConfig struct {
	CatalogPath string `toml:"catalog_path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
