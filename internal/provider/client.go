package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// transportRetries 是连接层对 429/5xx 的自动重试上限，独立于
// 执行器层面的指数退避重试。
const transportRetries = 2

// NewHTTPClient 构造全局共享的出站连接池。连接阶段与读取阶段的超时
// 相互独立：拨号/TLS 握手受 connect 限制，响应等待受 read 限制。
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	base := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{
		Transport: &retryTransport{base: base, maxRetries: transportRetries},
	}
}

// retryTransport 对瞬态状态码（429/5xx）做有限自动重试，支持 Retry-After。
// 请求体通过 GetBody 重放，因此只对可重放请求生效。
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if err != nil || resp == nil || !transientStatus(resp.StatusCode) || req.GetBody == nil {
			break
		}
		wait := retryAfter(resp)
		if wait == 0 {
			// 基本指数退避：0.8s, 1.6s ...
			wait = 800 * time.Millisecond << attempt
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
		body, berr := req.GetBody()
		if berr != nil {
			return nil, berr
		}
		// RoundTripper 不允许修改调用方的请求，重放走克隆
		retry := req.Clone(req.Context())
		retry.Body = body
		resp, err = t.base.RoundTrip(retry)
	}
	return resp, err
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func retryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ChatClient 执行单次 chat-completion 请求/响应。连接池在所有执行器间共享。
type ChatClient struct {
	HTTP *http.Client
}

// Complete 发送一次请求并解析回答。可接受 choices 数组或扁平 content 两种
// 响应形状；其余形状视为格式错误并携带原始响应体返回。
func (c *ChatClient) Complete(ctx context.Context, apiURL, apiKey string, payload RequestPayload) (string, error) {
	b, err := payload.Body()
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, normalizeEndpoint(apiURL), bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	httpc := c.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(gjson.GetBytes(raw, "error.message").String())
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
	}
	return parseAnswer(raw)
}

// parseAnswer 容忍两种响应形状：标准 choices 数组与扁平 content 字段。
func parseAnswer(raw []byte) (string, error) {
	if content := gjson.GetBytes(raw, "choices.0.message.content"); content.Exists() {
		out := strings.TrimSpace(content.String())
		if out == "" {
			return "", fmt.Errorf("empty answer in choices: %s", clipBody(raw))
		}
		return out, nil
	}
	if content := gjson.GetBytes(raw, "content"); content.Exists() && content.Type == gjson.String {
		out := strings.TrimSpace(content.String())
		if out == "" {
			return "", fmt.Errorf("empty flat content: %s", clipBody(raw))
		}
		return out, nil
	}
	return "", fmt.Errorf("unrecognized response shape: %s", clipBody(raw))
}

const maxBodyClip = 512

func clipBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxBodyClip {
		return s[:maxBodyClip] + "..."
	}
	return s
}

// normalizeEndpoint 规范化端点，避免配置里已带 /chat/completions 造成路径重复。
func normalizeEndpoint(apiURL string) string {
	url := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}
