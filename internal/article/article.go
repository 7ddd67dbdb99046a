package article

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Article 是抓取并清洗后的文档。
type Article struct {
	Title string
	Text  string
}

// Fetcher 负责文档获取：一次阻塞 HTTP 拉取加正则清洗。
// 抓取失败只跳过该文档，绝不中止批次。
type Fetcher struct {
	HTTP      *http.Client
	UserAgent string
	MaxChars  int
}

// NewFetcher 构造带独立超时的抓取器。
func NewFetcher(timeout time.Duration, userAgent string, maxChars int) *Fetcher {
	return &Fetcher{
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		MaxChars:  maxChars,
	}
}

// Fetch 拉取 URL 并返回清洗后的文档。
func (f *Fetcher) Fetch(ctx context.Context, url string) (Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Article{}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	httpc := f.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return Article{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Article{}, fmt.Errorf("fetch %s: status=%d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Article{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	art := Clean(string(raw), f.MaxChars)
	if art.Text == "" {
		return Article{}, fmt.Errorf("fetch %s: no usable text after cleaning", url)
	}
	return art, nil
}
