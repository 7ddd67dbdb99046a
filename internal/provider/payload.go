package provider

import (
	"encoding/json"
	"fmt"
)

// 固定的分析师角色与拼接模板，与报告语言保持一致。
const (
	SystemPersona = "你是一位专业的中文分析师。"
	userTemplate  = "文章内容：%s\n\n指令：%s"

	// token 上限字段名：大多数模型用 max_tokens，新一代推理模型要求
	// max_completion_tokens，传错会被 400 拒掉。
	tokenFieldDefault = "max_tokens"
	tokenFieldAlt     = "max_completion_tokens"
)

// modelQuirk 记录单个模型族的请求形状差异。查表而不是散落 if。
type modelQuirk struct {
	altTokenField bool
	noSystemRole  bool
}

var modelQuirks = map[string]modelQuirk{
	"o1":         {altTokenField: true, noSystemRole: true},
	"o1-mini":    {altTokenField: true, noSystemRole: true},
	"o1-preview": {altTokenField: true, noSystemRole: true},
	"o3-mini":    {altTokenField: true},
	"gpt-5":      {altTokenField: true},
	"gpt-5-mini": {altTokenField: true},
}

// Message 是 chat-completion 消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestPayload 是一次查询的完整请求形状。
type RequestPayload struct {
	Model       string
	Messages    []Message
	Temperature float64
	TokenField  string
	MaxTokens   int
}

// GenParams 是批次级固定生成参数。
type GenParams struct {
	Temperature float64
	MaxTokens   int
}

// BuildPayload 根据模型差异表生成请求。纯函数：无 I/O、无共享状态。
func BuildPayload(modelID, contextText, promptText string, gen GenParams) RequestPayload {
	quirk := modelQuirks[modelID]
	user := fmt.Sprintf(userTemplate, contextText, promptText)
	var messages []Message
	if !quirk.noSystemRole {
		messages = append(messages, Message{Role: "system", Content: SystemPersona})
	}
	messages = append(messages, Message{Role: "user", Content: user})
	field := tokenFieldDefault
	if quirk.altTokenField {
		field = tokenFieldAlt
	}
	return RequestPayload{
		Model:       modelID,
		Messages:    messages,
		Temperature: gen.Temperature,
		TokenField:  field,
		MaxTokens:   gen.MaxTokens,
	}
}

// UserContent 返回 user 消息正文（LLM 日志用）。
func (p RequestPayload) UserContent() string {
	for _, m := range p.Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

// SystemContent 返回 system 消息正文，可能为空。
func (p RequestPayload) SystemContent() string {
	for _, m := range p.Messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// Body 编码为发往 /chat/completions 的 JSON。token 字段名按差异表选择。
func (p RequestPayload) Body() ([]byte, error) {
	body := map[string]any{
		"model":       p.Model,
		"messages":    p.Messages,
		"temperature": p.Temperature,
	}
	field := p.TokenField
	if field == "" {
		field = tokenFieldDefault
	}
	body[field] = p.MaxTokens
	return json.Marshal(body)
}
