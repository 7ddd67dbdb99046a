package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 独立的 LLM 请求/响应日志通道：把每次模型调用的 prompt 与原始回复
// 落到单独的文件，便于复查批次结果而不污染主日志。

var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
)

func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmDumpPayload = enabled
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

func logLLM(kind, target string, sections []llmSection) {
	llmMu.Lock()
	sink := llmLog
	llmMu.Unlock()
	if sink == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[LLM]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if target != "" {
		b.WriteString("[")
		b.WriteString(target)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	sink.Print(b.String())
}

// LogLLMRequest 记录一次查询请求。target 形如 provider:model，payload 仅在
// 开启 dump 时附带（密钥不在 payload 中，无需掩码）。
func LogLLMRequest(target, systemPrompt, userPrompt, payload string) {
	sections := []llmSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	llmMu.Lock()
	dump := llmDumpPayload
	llmMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{Title: "PAYLOAD", Body: payload})
	}
	logLLM("request", target, sections)
}

func LogLLMResponse(target, raw string) {
	logLLM("response", target, []llmSection{{Title: "RAW", Body: raw}})
}
