package batch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"censcope/internal/article"
	"censcope/internal/dispatch"
	"censcope/internal/logger"
	"censcope/internal/registry"
	"censcope/internal/report"

	"github.com/google/uuid"
)

// Document 是一个待分析输入：给 URL 走抓取，给 Raw 直接用原文。
type Document struct {
	URL   string
	Raw   string
	Title string
}

// File 是一份产出的报告文件。
type File struct {
	Name    string
	Content []byte
}

// Batch 是一次完整运行的产物。只存在于内存中，不落历史库。
type Batch struct {
	ID          string
	GeneratedAt time.Time
	Files       []File
	Skipped     []SkippedDoc
}

// SkippedDoc 记录被整体跳过的文档与原因。
type SkippedDoc struct {
	Source string
	Reason string
}

// Runner 把文档批次串起来：抓取 → 变体 → 调度 → 装配。
type Runner struct {
	Fetcher   *article.Fetcher
	Registry  *registry.Registry
	Scheduler *dispatch.Scheduler

	SourceTag       string
	NoticeImagePath string
	MaxChars        int
	// OutputDir 非空时，每个完成的批次同时落一份到磁盘。
	OutputDir string

	// now 可注入，报告与文件名的时间戳由它决定。
	now func() time.Time
}

// NewRunner 构造批次运行器。
func NewRunner(fetcher *article.Fetcher, reg *registry.Registry, sched *dispatch.Scheduler, sourceTag, noticeImage string, maxChars int) *Runner {
	return &Runner{
		Fetcher:         fetcher,
		Registry:        reg,
		Scheduler:       sched,
		SourceTag:       sourceTag,
		NoticeImagePath: noticeImage,
		MaxChars:        maxChars,
	}
}

// Run 处理整批文档。单个文档的获取失败只跳过该文档；
// 单个任务的失败只体现在对应槽位的失败文案上。
func (r *Runner) Run(ctx context.Context, docs []Document, prompts []string, providerFilter []string) (*Batch, error) {
	cleaned := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(docs) == 0 || len(cleaned) == 0 {
		return nil, fmt.Errorf("batch requires at least one document and one prompt")
	}
	catalog := r.Registry.Snapshot().Select(providerFilter)
	if len(catalog.Providers) == 0 {
		return nil, fmt.Errorf("no providers selected")
	}
	targets := catalog.Targets()

	promptList := make([]dispatch.Prompt, len(cleaned))
	for i, p := range cleaned {
		promptList[i] = dispatch.Prompt{Index: i + 1, Text: p}
	}

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	out := &Batch{ID: uuid.NewString(), GeneratedAt: now()}
	imagePath := r.noticeImage()

	for _, doc := range docs {
		art, err := r.loadDocument(ctx, doc)
		if err != nil {
			logger.Errorf("文档跳过 source=%s err=%v", doc.Source(), err)
			out.Skipped = append(out.Skipped, SkippedDoc{Source: doc.Source(), Reason: err.Error()})
			continue
		}
		for _, variant := range BuildVariants(art) {
			tasks := expandTasks(variant, promptList, targets)
			matrix, err := r.Scheduler.Dispatch(ctx, tasks)
			if err != nil {
				return nil, fmt.Errorf("dispatch failed (doc=%s, variant=%s): %w", doc.Source(), variant.Label, err)
			}
			if !matrix.Complete() && len(tasks) > 0 {
				logger.Warnf("矩阵不完整 doc=%s variant=%s", doc.Source(), variant.Label)
			}
			ts := now()
			content := report.Render(report.Input{
				Title:        variant.Title,
				VariantLabel: variant.Label,
				Notice:       variant.Label == VariantB,
				ImagePath:    imagePath,
				GeneratedAt:  ts,
				Prompts:      promptList,
				Catalog:      catalog,
				Matrix:       matrix,
			})
			name := report.Filename(r.SourceTag, art.Title, variant.Label, ts)
			out.Files = append(out.Files, File{Name: name, Content: []byte(content)})
		}
	}
	if len(out.Files) == 0 {
		return nil, fmt.Errorf("all documents skipped")
	}
	if dir := strings.TrimSpace(r.OutputDir); dir != "" {
		if err := out.WriteTo(dir); err != nil {
			logger.Warnf("批次落盘失败 dir=%s err=%v", dir, err)
		}
	}
	return out, nil
}

func (r *Runner) loadDocument(ctx context.Context, doc Document) (article.Article, error) {
	if strings.TrimSpace(doc.URL) != "" {
		return r.Fetcher.Fetch(ctx, doc.URL)
	}
	text := strings.TrimSpace(doc.Raw)
	if text == "" {
		return article.Article{}, fmt.Errorf("document has neither url nor raw text")
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = "Untitled"
	}
	return article.Article{Title: title, Text: article.Truncate(text, r.MaxChars)}, nil
}

// noticeImage 仅当图片真实存在时才在变体 B 报告中引用。
func (r *Runner) noticeImage() string {
	path := strings.TrimSpace(r.NoticeImagePath)
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Source 返回文档的可读来源标识。
func (d Document) Source() string {
	if strings.TrimSpace(d.URL) != "" {
		return d.URL
	}
	if strings.TrimSpace(d.Title) != "" {
		return "raw:" + d.Title
	}
	return "raw"
}

// expandTasks 生成 prompt × target 的有序叉积：prompt 序号优先，
// 供应商与模型保持目录顺序。
func expandTasks(v Variant, prompts []dispatch.Prompt, targets []registry.Target) []dispatch.Task {
	tasks := make([]dispatch.Task, 0, len(prompts)*len(targets))
	for _, p := range prompts {
		for _, t := range targets {
			tasks = append(tasks, dispatch.Task{
				Variant: v.Label,
				Prompt:  p,
				Target:  t,
				Context: v.Context,
			})
		}
	}
	return tasks
}
