package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取主配置并返回校验过的 Config。配置文件可以通过顶层
// include 列表引入其他文件，被引入者先合并、主文件最后覆盖。
// 未显式写出的字段按 applyDefaults 补齐。
func Load(path string) (*Config, error) {
	files, err := expandIncludePaths(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := overlayFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	explicit := make(keySet)
	markExplicitKeys(v.AllSettings(), explicit)
	cfg.applyDefaults(explicit)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overlayFile 把一个文件的内容叠加进累积视图，后叠加者覆盖先到者。
func overlayFile(v *viper.Viper, path string) error {
	layer := viper.New()
	layer.SetConfigFile(path)
	if err := layer.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(layer.AllSettings())
}

// expandIncludePaths 把入口文件展开成按合并顺序排列的文件列表：
// 被包含者在前，包含者在后。
func expandIncludePaths(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	walked := make(map[string]bool)
	inProgress := make(map[string]bool)
	files, err := walkIncludeTree(abs, walked, inProgress)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return []string{abs}, nil
	}
	return files, nil
}

// walkIncludeTree 深度优先展开 include。inProgress 标记当前递归路径，
// 再次碰到即为环；walked 去重让同一文件只合并一次。
func walkIncludeTree(path string, walked, inProgress map[string]bool) ([]string, error) {
	path = filepath.Clean(path)
	if inProgress[path] {
		return nil, fmt.Errorf("include cycle detected: %s", path)
	}
	if walked[path] {
		return nil, nil
	}
	inProgress[path] = true
	includes, err := readIncludeDirective(path)
	if err != nil {
		return nil, fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	baseDir := filepath.Dir(path)
	var ordered []string
	for _, inc := range includes {
		target := inc
		if !filepath.IsAbs(target) {
			target = filepath.Join(baseDir, target)
		}
		nested, err := walkIncludeTree(target, walked, inProgress)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, nested...)
	}
	delete(inProgress, path)
	walked[path] = true
	return append(ordered, path), nil
}

// readIncludeDirective 只取出文件顶层的 include 字符串列表，
// 不解析其余内容。
func readIncludeDirective(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		if strs, ok := raw.([]string); ok {
			items = make([]any, len(strs))
			for i, s := range strs {
				items[i] = s
			}
		} else {
			return nil, fmt.Errorf("include must be a string array")
		}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include only supports strings")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// markExplicitKeys 记录配置文件里真正写出的字段路径。默认值只能
// 填补从未出现的键，不许覆盖显式写出的零值。
func markExplicitKeys(settings map[string]any, dest keySet) {
	if dest == nil {
		return
	}
	flattenKeys("", settings, dest)
}

func flattenKeys(prefix string, node any, dest keySet) {
	appendKey := func(k string) string {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return ""
		}
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			if next := appendKey(k); next != "" {
				flattenKeys(next, v, dest)
			}
		}
	case map[interface{}]interface{}:
		for k, v := range val {
			str, ok := k.(string)
			if !ok {
				continue
			}
			if next := appendKey(str); next != "" {
				flattenKeys(next, v, dest)
			}
		}
	case []any:
		dest.mark(prefix)
		for _, item := range val {
			flattenKeys(prefix, item, dest)
		}
	default:
		dest.mark(prefix)
	}
}
