package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"censcope/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Provider 描述一个聊天补全供应商：端点、凭证槽位与可选模型列表。
// 列表顺序即配置顺序，报告渲染依赖该顺序保持稳定。
type Provider struct {
	Name   string   `mapstructure:"name" yaml:"name"`
	APIURL string   `mapstructure:"api_url" yaml:"api_url"`
	APIKey string   `mapstructure:"api_key" yaml:"api_key"`
	KeyEnv string   `mapstructure:"api_key_env" yaml:"api_key_env"`
	Models []string `mapstructure:"models" yaml:"models"`
}

// Credential 返回可用密钥：显式配置优先，否则读取环境变量槽位。
func (p Provider) Credential() string {
	if key := strings.TrimSpace(p.APIKey); key != "" {
		return key
	}
	if env := strings.TrimSpace(p.KeyEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// Skipped 判定该供应商是否整体跳过（缺密钥或未选模型）。
// 跳过不是错误：报告中渲染为单个 skip 标记块。
func (p Provider) Skipped() bool {
	return p.Credential() == "" || len(p.Models) == 0
}

// Target 是一个可查询的 (provider, model) 组合，附带已解析的端点与凭证。
type Target struct {
	Provider string
	Model    string
	APIURL   string
	APIKey   string
}

// ID 形如 provider:model，用于日志与失败文案。
func (t Target) ID() string {
	return t.Provider + ":" + t.Model
}

// Catalog 是供应商目录的一致性快照。
type Catalog struct {
	Version   int64
	LoadedAt  time.Time
	Providers []Provider
}

// Targets 按配置顺序展开全部可查询组合（供应商顺序 × 各自模型顺序），
// 跳过的供应商不产生条目。
func (c Catalog) Targets() []Target {
	var out []Target
	for _, p := range c.Providers {
		if p.Skipped() {
			continue
		}
		key := p.Credential()
		for _, m := range p.Models {
			m = strings.TrimSpace(m)
			if m == "" {
				continue
			}
			out = append(out, Target{Provider: p.Name, Model: m, APIURL: p.APIURL, APIKey: key})
		}
	}
	return out
}

// Provider 按名称查找。
func (c Catalog) Provider(name string) (Provider, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return Provider{}, false
}

// Select 返回仅保留指定供应商的子目录；names 为空时返回完整目录。
// 未知名称被忽略，顺序仍按目录中的配置顺序。
func (c Catalog) Select(names []string) Catalog {
	if len(names) == 0 {
		return c
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	out := Catalog{Version: c.Version, LoadedAt: c.LoadedAt}
	for _, p := range c.Providers {
		if want[p.Name] {
			out.Providers = append(out.Providers, p)
		}
	}
	return out
}

type fileConfig struct {
	Providers []Provider `mapstructure:"providers" yaml:"providers"`
}

// ChangeListener 在目录重载成功后触发。
type ChangeListener func(Catalog)

// Registry 管理供应商目录文件并监听更新。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	catalog   Catalog
	listeners []ChangeListener
}

// NewRegistry 读取目录文件并开启热更新监听。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("target registry requires catalog path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read target catalog failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("target catalog reload failed (%s): %v", evt.Name, err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// NewStaticRegistry 从已有 Provider 列表构造不带文件监听的目录（测试与嵌入场景）。
func NewStaticRegistry(providers []Provider) *Registry {
	r := &Registry{}
	r.catalog = Catalog{Version: 1, LoadedAt: time.Now(), Providers: append([]Provider(nil), providers...)}
	return r
}

// Snapshot 返回当前目录快照（深拷贝，读方可随意持有）。
func (r *Registry) Snapshot() Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneCatalog(r.catalog)
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	if err := r.v.ReadInConfig(); err != nil {
		return err
	}
	var fc fileConfig
	if err := r.v.Unmarshal(&fc); err != nil {
		return fmt.Errorf("parse target catalog failed: %w", err)
	}
	providers, err := normalizeProviders(fc.Providers)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.catalog = Catalog{
		Version:   r.catalog.Version + 1,
		LoadedAt:  time.Now(),
		Providers: providers,
	}
	loaded := len(providers)
	r.mu.Unlock()
	logger.Infof("目标目录已加载（providers=%d, path=%s）", loaded, r.path)
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	listeners := append([]ChangeListener(nil), r.listeners...)
	snap := cloneCatalog(r.catalog)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func normalizeProviders(in []Provider) ([]Provider, error) {
	seen := make(map[string]bool, len(in))
	out := make([]Provider, 0, len(in))
	for i, p := range in {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("providers[%d] missing name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate provider name: %s", p.Name)
		}
		seen[p.Name] = true
		p.APIURL = strings.TrimSpace(p.APIURL)
		if p.APIURL == "" {
			return nil, fmt.Errorf("provider %s missing api_url", p.Name)
		}
		models := make([]string, 0, len(p.Models))
		for _, m := range p.Models {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		p.Models = models
		out = append(out, p)
	}
	return out, nil
}

func cloneCatalog(c Catalog) Catalog {
	out := Catalog{Version: c.Version, LoadedAt: c.LoadedAt}
	out.Providers = make([]Provider, len(c.Providers))
	copy(out.Providers, c.Providers)
	for i := range out.Providers {
		out.Providers[i].Models = append([]string(nil), c.Providers[i].Models...)
	}
	return out
}
