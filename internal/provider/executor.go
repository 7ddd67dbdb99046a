package provider

import (
	"context"
	"fmt"
	"time"

	"censcope/internal/logger"
	"censcope/internal/registry"
)

// RetryPolicy 描述执行器层的指数退避：首次失败后等 BaseDelay，
// 之后逐次翻倍。总尝试次数 = MaxRetries + 1。
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxRetries int
}

// Delay 返回第 attempt 次失败后的等待时长（attempt 从 0 计）。
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	d := base << attempt
	if d > time.Minute {
		d = time.Minute
	}
	return d
}

// Completer 抽象单次请求/响应，测试时注入假实现。
type Completer interface {
	Complete(ctx context.Context, apiURL, apiKey string, payload RequestPayload) (string, error)
}

// Executor 对单个 (prompt, target) 执行带重试的查询。
// 重试覆盖传输失败、非 2xx 与响应格式错误；可解析的 2xx 绝不重试。
type Executor struct {
	Client Completer
	Policy RetryPolicy
	Gen    GenParams

	// sleep 可在测试中替换掉真实等待。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor 构造共享连接池上的执行器。
func NewExecutor(client Completer, policy RetryPolicy, gen GenParams) *Executor {
	return &Executor{Client: client, Policy: policy, Gen: gen}
}

// Execute 返回 (回答, 实际尝试次数, 错误)。错误非空表示重试耗尽，
// 属于该任务的终态结果，不应中止批次。
func (e *Executor) Execute(ctx context.Context, target registry.Target, contextText, promptText string) (string, int, error) {
	payload := BuildPayload(target.Model, contextText, promptText, e.Gen)
	body, _ := payload.Body()
	logger.LogLLMRequest(target.ID(), payload.SystemContent(), payload.UserContent(), string(body))

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= e.Policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			// 调用方中止：不再发起新尝试，已发出的请求自然结束
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		attempts++
		out, err := e.Client.Complete(ctx, target.APIURL, target.APIKey, payload)
		if err == nil {
			logger.LogLLMResponse(target.ID(), out)
			return out, attempts, nil
		}
		lastErr = err
		logger.Warnf("查询失败 target=%s attempt=%d/%d err=%v", target.ID(), attempts, e.Policy.MaxRetries+1, err)
		if attempt < e.Policy.MaxRetries {
			if serr := e.doSleep(ctx, e.Policy.Delay(attempt)); serr != nil {
				break
			}
		}
	}
	return "", attempts, fmt.Errorf("模型 %s 查询失败（尝试 %d 次）: %w", target.ID(), attempts, lastErr)
}

func (e *Executor) doSleep(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
