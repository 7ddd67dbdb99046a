package batch

import "censcope/internal/article"

// 两个变体共享同一份清洗后的正文：A 原样，B 在正文前加固定的
// 审查提示导语，标题带上提示后缀。
const (
	VariantA = "A"
	VariantB = "B"

	censorTitleSuffix = "_此内容因违规无法查看"
	censorPreamble    = "此内容因违规无法查看\n\n[此处应有表示审查的图片，但由于文本格式，无法显示]\n\n"
)

// Variant 是文档的一种呈现，两个变体各自独立分析。
type Variant struct {
	Label   string
	Title   string
	Context string
}

// BuildVariants 从清洗结果派生 A/B 变体，顺序固定 A 在前。
func BuildVariants(art article.Article) []Variant {
	return []Variant{
		{Label: VariantA, Title: art.Title, Context: art.Text},
		{Label: VariantB, Title: art.Title + censorTitleSuffix, Context: censorPreamble + art.Text},
	}
}
