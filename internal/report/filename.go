package report

import (
	"regexp"
	"strings"
	"time"
)

// 文件名里只保留字母、数字（含 CJK）、下划线与连字符。
var unsafeRunes = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

const maxTitleRunes = 48

// Filename 派生 {source}{title}_{variant}_{timestamp}.md，剔除文件系统
// 不安全字符并对标题限长。
func Filename(sourceTag, title, variantLabel string, ts time.Time) string {
	clean := unsafeRunes.ReplaceAllString(strings.TrimSpace(title), "")
	if runes := []rune(clean); len(runes) > maxTitleRunes {
		clean = string(runes[:maxTitleRunes])
	}
	if clean == "" {
		clean = "untitled"
	}
	tag := unsafeRunes.ReplaceAllString(strings.TrimSpace(sourceTag), "")
	return tag + clean + "_" + variantLabel + "_" + ts.Format("20060102_150405") + ".md"
}
