package apihttp

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"censcope/internal/batch"
	"censcope/internal/dispatch"
	"censcope/internal/logger"
	"censcope/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okExecutor struct{}

func (okExecutor) Execute(ctx context.Context, target registry.Target, contextText, promptText string) (string, int, error) {
	return "answer:" + target.ID() + ":" + promptText, 1, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.NewStaticRegistry([]registry.Provider{
		{Name: "AiHubMix", APIURL: "https://x.test/v1", APIKey: "k1", Models: []string{"gpt-4o"}},
	})
	runner := batch.NewRunner(nil, reg, &dispatch.Scheduler{Exec: okExecutor{}, MaxWorkers: 4}, "", "", 4000)
	srv, err := NewServer(ServerConfig{Runner: runner})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doJSON(t, newTestServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestCreateBatch_Success(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/batches", `{
		"documents": [{"title": "测试文章", "text": "这是一篇测试正文。"}],
		"prompts": ["判断是否应该删除屏蔽"]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ID    string `json:"id"`
		Files []struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	require.Len(t, resp.Files, 2)
	assert.True(t, strings.HasSuffix(resp.Files[0].Name, ".md"))
	assert.Contains(t, resp.Files[0].Content, "## 审查比较分析")
	assert.Contains(t, resp.Files[0].Content, "answer:AiHubMix:gpt-4o")
}

func TestCreateBatch_SchemaRejections(t *testing.T) {
	cases := map[string]string{
		"no prompts":        `{"documents": [{"text": "正文"}]}`,
		"empty prompts":     `{"documents": [{"text": "正文"}], "prompts": []}`,
		"no input source":   `{"prompts": ["p"]}`,
		"document w/o text": `{"documents": [{"title": "x"}], "prompts": ["p"]}`,
		"not json":          `{"prompts": ["p"`,
	}
	srv := newTestServer(t)
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/batches", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateBatch_RunnerErrors(t *testing.T) {
	srv := newTestServer(t)
	// 通过 schema 但编排失败：供应商过滤后为空
	rec := doJSON(t, srv, http.MethodPost, "/api/batches", `{
		"documents": [{"text": "正文"}],
		"prompts": ["p"],
		"providers": ["Unknown"]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no providers selected")
}

func TestArchiveRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/batches", `{
		"documents": [{"title": "t", "text": "正文"}],
		"prompts": ["p"]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	arc := doJSON(t, srv, http.MethodGet, "/api/batches/"+resp.ID+"/archive", "")
	require.Equal(t, http.StatusOK, arc.Code)
	assert.Equal(t, "application/zip", arc.Header().Get("Content-Type"))
	assert.Contains(t, arc.Header().Get("Content-Disposition"), resp.ID+".zip")

	zr, err := zip.NewReader(bytes.NewReader(arc.Body.Bytes()), int64(arc.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "manifest.yaml")
	assert.Len(t, names, 3) // manifest + 两个变体报告
}

func TestArchive_ZipFailureLoggedAndSkipped(t *testing.T) {
	srv := newTestServer(t)
	srv.batches.zipBatch = func(*batch.Batch) ([]byte, error) {
		return nil, fmt.Errorf("disk full")
	}
	var logs bytes.Buffer
	logger.SetOutput(&logs)
	defer logger.SetOutput(os.Stdout)

	rec := doJSON(t, srv, http.MethodPost, "/api/batches", `{
		"documents": [{"title": "t", "text": "正文"}],
		"prompts": ["p"]
	}`)
	// 打包失败不影响批次响应本身
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, logs.String(), "批次打包失败")
	assert.Contains(t, logs.String(), "disk full")

	arc := doJSON(t, srv, http.MethodGet, "/api/batches/"+resp.ID+"/archive", "")
	assert.Equal(t, http.StatusNotFound, arc.Code)
}

func TestArchive_UnknownID(t *testing.T) {
	rec := doJSON(t, newTestServer(t), http.MethodGet, "/api/batches/nope/archive", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewServer_RequiresRunner(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestArchiveStore_EvictsOldest(t *testing.T) {
	s := newArchiveStore(2)
	for i := 0; i < 3; i++ {
		s.put(fmt.Sprintf("id-%d", i), []byte{byte(i)})
	}
	_, ok := s.get("id-0")
	assert.False(t, ok)
	_, ok = s.get("id-1")
	assert.True(t, ok)
	_, ok = s.get("id-2")
	assert.True(t, ok)
}

func TestServer_StartStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t)
	srv.addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
