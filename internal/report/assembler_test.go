package report

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"censcope/internal/dispatch"
	"censcope/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2025, 8, 23, 10, 30, 0, 0, time.UTC)

func testCatalog() registry.Catalog {
	return registry.Catalog{Providers: []registry.Provider{
		{Name: "AiHubMix", APIURL: "https://x.test/v1", APIKey: "k1", Models: []string{"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"}},
		{Name: "Hunyuan", APIURL: "https://y.test/v1", APIKey: "k2", Models: []string{"hunyuan-pro"}},
	}}
}

func buildMatrix(t *testing.T, variant string, prompts []dispatch.Prompt, catalog registry.Catalog, shuffle bool) *dispatch.Matrix {
	t.Helper()
	targets := catalog.Targets()
	var tasks []dispatch.Task
	for _, p := range prompts {
		for _, tg := range targets {
			tasks = append(tasks, dispatch.Task{Variant: variant, Prompt: p, Target: tg, Context: "ctx"})
		}
	}
	// 通过调度器灌入结果；shuffle 时加入随机延迟制造乱序完成
	sched := &dispatch.Scheduler{Exec: orderedStub{jitter: shuffle}, MaxWorkers: 8}
	matrix, err := sched.Dispatch(context.Background(), tasks)
	require.NoError(t, err)
	require.True(t, matrix.Complete())
	return matrix
}

type orderedStub struct{ jitter bool }

func (s orderedStub) Execute(ctx context.Context, target registry.Target, contextText, promptText string) (string, int, error) {
	if s.jitter {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
	}
	return fmt.Sprintf("answer(%s|%s)", target.ID(), promptText), 1, nil
}

func baseInput(matrix *dispatch.Matrix, prompts []dispatch.Prompt, catalog registry.Catalog) Input {
	return Input{
		Title:        "测试文章",
		VariantLabel: "A",
		GeneratedAt:  fixedTime,
		Prompts:      prompts,
		Catalog:      catalog,
		Matrix:       matrix,
	}
}

func TestRender_TwoPromptsThreeModels(t *testing.T) {
	catalog := registry.Catalog{Providers: []registry.Provider{
		{Name: "AiHubMix", APIURL: "https://x.test/v1", APIKey: "k1", Models: []string{"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"}},
	}}
	prompts := []dispatch.Prompt{{Index: 1, Text: "判断是否应该删除屏蔽"}, {Index: 2, Text: "判断已被删除屏蔽的可能性"}}
	matrix := buildMatrix(t, "A", prompts, catalog, false)

	out := Render(baseInput(matrix, prompts, catalog))

	assert.Equal(t, 2, strings.Count(out, "### 提示语:"))
	assert.Equal(t, 6, strings.Count(out, "#### [AiHubMix] 模型:"))
	// 模型块保持配置顺序
	i1 := strings.Index(out, "#### [AiHubMix] 模型: gpt-4o")
	i2 := strings.Index(out, "#### [AiHubMix] 模型: gpt-4-turbo")
	i3 := strings.Index(out, "#### [AiHubMix] 模型: gpt-3.5-turbo")
	require.True(t, i1 >= 0 && i2 >= 0 && i3 >= 0)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
}

func TestRender_ByteStableAcrossInsertionOrders(t *testing.T) {
	catalog := testCatalog()
	prompts := []dispatch.Prompt{{Index: 1, Text: "p1"}, {Index: 2, Text: "p2"}}

	m1 := buildMatrix(t, "A", prompts, catalog, false)
	m2 := buildMatrix(t, "A", prompts, catalog, true)

	out1 := Render(baseInput(m1, prompts, catalog))
	out2 := Render(baseInput(m2, prompts, catalog))
	assert.Equal(t, out1, out2)

	// 同一矩阵重复渲染也逐字节一致
	assert.Equal(t, out1, Render(baseInput(m1, prompts, catalog)))
}

func TestRender_SkippedProvider(t *testing.T) {
	catalog := registry.Catalog{Providers: []registry.Provider{
		{Name: "AiHubMix", APIURL: "https://x.test/v1", APIKey: "k1", Models: []string{"gpt-4o"}},
		{Name: "Hunyuan", APIURL: "https://y.test/v1", Models: []string{"hunyuan-pro"}}, // 缺密钥
	}}
	prompts := []dispatch.Prompt{{Index: 1, Text: "p1"}, {Index: 2, Text: "p2"}}
	matrix := buildMatrix(t, "A", prompts, catalog, false)

	out := Render(baseInput(matrix, prompts, catalog))

	assert.Equal(t, 2, strings.Count(out, "_Hunyuan skipped (missing key or models)_"))
	assert.Equal(t, 0, strings.Count(out, "#### [Hunyuan]"))
	assert.Equal(t, 2, strings.Count(out, "#### [AiHubMix] 模型: gpt-4o"))
}

func TestRender_FailedModelMarker(t *testing.T) {
	catalog := registry.Catalog{Providers: []registry.Provider{
		{Name: "AiHubMix", APIURL: "https://x.test/v1", APIKey: "k1", Models: []string{"gpt-4o", "gpt-4-turbo"}},
	}}
	prompts := []dispatch.Prompt{{Index: 1, Text: "p1"}}
	targets := catalog.Targets()
	var tasks []dispatch.Task
	for _, tg := range targets {
		tasks = append(tasks, dispatch.Task{Variant: "A", Prompt: prompts[0], Target: tg, Context: "ctx"})
	}
	sched := &dispatch.Scheduler{Exec: failOneStub{failModel: "gpt-4-turbo"}, MaxWorkers: 4}
	matrix, err := sched.Dispatch(context.Background(), tasks)
	require.NoError(t, err)

	out := Render(baseInput(matrix, prompts, catalog))

	blocks := strings.Split(out, "#### ")
	require.Len(t, blocks, 3)
	assert.Contains(t, blocks[1], "gpt-4o")
	assert.Contains(t, blocks[1], "answer(")
	assert.Contains(t, blocks[2], "gpt-4-turbo")
	assert.Contains(t, blocks[2], "Error:")
	assert.Contains(t, blocks[2], "AiHubMix:gpt-4-turbo")
}

type failOneStub struct{ failModel string }

func (s failOneStub) Execute(ctx context.Context, target registry.Target, contextText, promptText string) (string, int, error) {
	if target.Model == s.failModel {
		return "", 3, fmt.Errorf("模型 %s 查询失败（尝试 3 次）: status=500: boom", target.ID())
	}
	return fmt.Sprintf("answer(%s|%s)", target.ID(), promptText), 1, nil
}

func TestRender_VariantBNotice(t *testing.T) {
	catalog := testCatalog()
	prompts := []dispatch.Prompt{{Index: 1, Text: "p1"}}
	matrix := buildMatrix(t, "B", prompts, catalog, false)

	in := baseInput(matrix, prompts, catalog)
	in.VariantLabel = "B"
	in.Notice = true
	in.ImagePath = "/data/censorship.png"
	out := Render(in)

	assert.Contains(t, out, "![审查提示图](/data/censorship.png)")
	assert.Contains(t, out, noticeBlock)
	// 提示块在比较段之前
	assert.Less(t, strings.Index(out, noticeBlock), strings.Index(out, sectionHeader))
}

func TestRender_MetadataBlock(t *testing.T) {
	catalog := testCatalog()
	prompts := []dispatch.Prompt{{Index: 1, Text: "p1"}}
	matrix := buildMatrix(t, "A", prompts, catalog, false)

	out := Render(baseInput(matrix, prompts, catalog))
	assert.True(t, strings.HasPrefix(out, "# 测试文章\n"))
	assert.Contains(t, out, "Provider: AiHubMix & Hunyuan")
	assert.Contains(t, out, "处理日期: 2025-08-23 10:30")
	assert.Contains(t, out, "模型: gpt-4o, gpt-4-turbo, gpt-3.5-turbo, hunyuan-pro")
}
