package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload_DefaultShape(t *testing.T) {
	gen := GenParams{Temperature: 1.0, MaxTokens: 1000}
	p := BuildPayload("gpt-4o", "正文内容", "判断是否应该删除屏蔽", gen)

	require.Len(t, p.Messages, 2)
	assert.Equal(t, "system", p.Messages[0].Role)
	assert.Equal(t, SystemPersona, p.Messages[0].Content)
	assert.Equal(t, "user", p.Messages[1].Role)
	assert.Equal(t, "文章内容：正文内容\n\n指令：判断是否应该删除屏蔽", p.Messages[1].Content)
	assert.Equal(t, "max_tokens", p.TokenField)

	body, err := p.Body()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "gpt-4o", decoded["model"])
	assert.EqualValues(t, 1000, decoded["max_tokens"])
	assert.NotContains(t, decoded, "max_completion_tokens")
}

func TestBuildPayload_AltTokenField(t *testing.T) {
	gen := GenParams{Temperature: 1.0, MaxTokens: 1000}
	p := BuildPayload("o1-mini", "ctx", "prompt", gen)

	assert.Equal(t, "max_completion_tokens", p.TokenField)
	// o1 系列不接受 system 角色
	require.Len(t, p.Messages, 1)
	assert.Equal(t, "user", p.Messages[0].Role)

	body, err := p.Body()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.EqualValues(t, 1000, decoded["max_completion_tokens"])
	assert.NotContains(t, decoded, "max_tokens")
}

func TestBuildPayload_Deterministic(t *testing.T) {
	gen := GenParams{Temperature: 0.9, MaxTokens: 800}
	a := BuildPayload("hunyuan-pro", "同一段正文", "同一条指令", gen)
	b := BuildPayload("hunyuan-pro", "同一段正文", "同一条指令", gen)
	assert.Equal(t, a, b)

	ba, err := a.Body()
	require.NoError(t, err)
	bb, err := b.Body()
	require.NoError(t, err)
	assert.Equal(t, ba, bb)
}
