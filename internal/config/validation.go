package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Query.validate(); err != nil {
		return err
	}
	if err := c.Dispatch.validate(); err != nil {
		return err
	}
	if err := c.Targets.validate(); err != nil {
		return err
	}
	return nil
}

func (q *QueryConfig) validate() error {
	if q.MaxRetries < 0 {
		return fmt.Errorf("query.max_retries must be >= 0")
	}
	// 生成温度限定在 [0.7, 1.0]，超出视为配置错误而不是悄悄夹紧
	if q.Temperature < 0.7 || q.Temperature > 1.0 {
		return fmt.Errorf("query.temperature must be within [0.7, 1.0], got %v", q.Temperature)
	}
	if q.MaxTokens < 800 || q.MaxTokens > 1000 {
		return fmt.Errorf("query.max_tokens must be within [800, 1000], got %d", q.MaxTokens)
	}
	if q.ReadTimeoutSeconds <= 0 || q.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("query timeouts must be positive")
	}
	return nil
}

func (d *DispatchConfig) validate() error {
	if d.MaxWorkers <= 0 {
		return fmt.Errorf("dispatch.max_workers must be > 0")
	}
	if d.PromptDelaySeconds < 0 {
		return fmt.Errorf("dispatch.prompt_delay_seconds must be >= 0")
	}
	return nil
}

func (t *TargetsConfig) validate() error {
	if strings.TrimSpace(t.CatalogPath) == "" {
		return fmt.Errorf("targets.catalog_path cannot be empty")
	}
	return nil
}
