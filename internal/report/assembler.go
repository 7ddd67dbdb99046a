package report

import (
	"fmt"
	"strings"
	"time"

	"censcope/internal/dispatch"
	"censcope/internal/registry"
)

// 变体 B 的固定提示块，沿用既有报告的措辞。
const (
	noticeBlock   = "**此文章因违规已经无法查看，以下内容为屏蔽前手动保存**"
	noticeImgline = "![审查提示图](%s)"
	sectionHeader = "## 审查比较分析"
	missingSlot   = "Error: 结果缺失"
)

// Input 汇集渲染一份报告所需的全部只读数据。矩阵在批次完成后
// 才交给装配器，渲染期间不再被写入。
type Input struct {
	Title        string
	VariantLabel string
	// Notice 为 true 时（变体 B）在比较块之前插入固定提示，
	// ImagePath 非空时附带图片引用。
	Notice      bool
	ImagePath   string
	GeneratedAt time.Time
	Prompts     []dispatch.Prompt
	Catalog     registry.Catalog
	Matrix      *dispatch.Matrix
}

// Render 把结果矩阵装配成 Markdown 报告。渲染顺序固定：prompt 按原始
// 序号，供应商与模型按目录配置顺序；同一矩阵内容渲染多少次都逐字节一致。
func Render(in Input) string {
	var blocks []string
	blocks = append(blocks, "# "+in.Title)
	blocks = append(blocks, "Provider: "+providerLine(in.Catalog))
	if models := modelLine(in.Catalog); models != "" {
		blocks = append(blocks, "模型: "+models)
	}
	blocks = append(blocks, "处理日期: "+in.GeneratedAt.Format("2006-01-02 15:04"))
	if in.Notice {
		if strings.TrimSpace(in.ImagePath) != "" {
			blocks = append(blocks, fmt.Sprintf(noticeImgline, in.ImagePath))
		}
		blocks = append(blocks, noticeBlock)
		blocks = append(blocks, "---")
	}
	blocks = append(blocks, sectionHeader)
	for _, p := range in.Prompts {
		blocks = append(blocks, fmt.Sprintf("- 提示语 %d: %s", p.Index, p.Text))
	}
	blocks = append(blocks, "")
	for _, p := range in.Prompts {
		blocks = append(blocks, "### 提示语: "+p.Text)
		for _, prov := range in.Catalog.Providers {
			if prov.Skipped() {
				blocks = append(blocks, fmt.Sprintf("_%s skipped (missing key or models)_", prov.Name))
				continue
			}
			for _, m := range prov.Models {
				blocks = append(blocks, renderSlot(in, p, prov.Name, m))
			}
		}
	}
	return strings.Join(blocks, "\n")
}

func renderSlot(in Input, p dispatch.Prompt, provider, model string) string {
	key := dispatch.Key{Variant: in.VariantLabel, Prompt: p.Index, Provider: provider, Model: model}
	text := missingSlot
	if r, ok := in.Matrix.Get(key); ok {
		text = r.Text
	}
	return fmt.Sprintf("#### [%s] 模型: %s\n\n%s\n\n---", provider, model, text)
}

func providerLine(c registry.Catalog) string {
	if len(c.Providers) == 0 {
		return "-"
	}
	names := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		names = append(names, p.Name)
	}
	return strings.Join(names, " & ")
}

func modelLine(c registry.Catalog) string {
	var models []string
	for _, p := range c.Providers {
		if p.Skipped() {
			continue
		}
		models = append(models, p.Models...)
	}
	return strings.Join(models, ", ")
}
