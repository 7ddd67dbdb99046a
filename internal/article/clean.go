package article

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 清洗管线是纯正则的：取正文容器 → 收段落 → 去标签 → 去噪声 → 压空白。
var (
	reH1       = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	reTitleTag = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	// 标题前缀噪声：【404文库】、【CDT××】等标签
	reTitleNoise = regexp.MustCompile(`【404文库】|【CDT[^】]*】|【\w+】`)

	reEntryDiv = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*entry-content[^"]*"[^>]*>(.*)`)
	reArticle  = regexp.MustCompile(`(?is)<article[^>]*>(.*?)</article>`)
	reScript   = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	rePara     = regexp.MustCompile(`(?is)<(p|h2|h3)[^>]*>(.*?)</(p|h2|h3)>`)
	reTag      = regexp.MustCompile(`(?s)<[^>]+>`)

	// 编辑部样板段落，命中即整段丢弃
	reBoiler = regexp.MustCompile(`CDT 档案卡|编者按|CDT编辑注|相关阅读|版权说明|更多文章`)
	// 正文噪声：裸 img 标记、方括号注记、推广尾巴
	reNoise = regexp.MustCompile(`img\s*\n*|\[[^\]]*\]|更多文章`)
	// 保留中日韩文字、单词字符与常用标点，其余剔除
	reKeep  = regexp.MustCompile(`[^\p{Han}\p{Latin}\p{N}_\s.,!?，。！？：、()（）\[\]“”《》]`)
	reSpace = regexp.MustCompile(`\s+`)

	minParagraphRunes = 20
)

// Clean 从原始 HTML 提取标题与清洗后的正文，并按 maxChars 截断。
func Clean(html string, maxChars int) Article {
	title := extractTitle(html)
	body := extractBody(html)
	paras := collectParagraphs(body)
	cleaned := strings.Join(paras, "\n\n")
	cleaned = reNoise.ReplaceAllString(cleaned, "")
	cleaned = reKeep.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(reSpace.ReplaceAllString(cleaned, " "))
	cleaned = Truncate(cleaned, maxChars)
	return Article{Title: title, Text: cleaned}
}

func extractTitle(html string) string {
	var raw string
	if m := reH1.FindStringSubmatch(html); m != nil {
		raw = m[1]
	} else if m := reTitleTag.FindStringSubmatch(html); m != nil {
		raw = m[1]
	}
	title := strings.TrimSpace(reTag.ReplaceAllString(raw, ""))
	title = strings.TrimSpace(reTitleNoise.ReplaceAllString(title, ""))
	if title == "" {
		return "Unknown Title"
	}
	return title
}

func extractBody(html string) string {
	if m := reEntryDiv.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	if m := reArticle.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return html
}

func collectParagraphs(body string) []string {
	body = reScript.ReplaceAllString(body, "")
	var out []string
	for _, m := range rePara.FindAllStringSubmatch(body, -1) {
		text := strings.TrimSpace(reTag.ReplaceAllString(m[2], ""))
		if len([]rune(text)) <= minParagraphRunes {
			continue
		}
		if reBoiler.MatchString(text) {
			continue
		}
		out = append(out, text)
	}
	return out
}

// Truncate 在 max 个字符（rune）处截断并追加省略号。中文正文一个字
// 占多个字节，上限必须按字符计，否则实际喂给模型的内容远少于配置值。
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
