package apihttp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"censcope/internal/batch"
	"censcope/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// 请求体先过 JSON Schema，再进结构体，避免把半合法输入喂给编排器。
const batchSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "urls": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "documents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "title": {"type": "string"},
          "text": {"type": "string", "minLength": 1}
        }
      }
    },
    "prompts": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "providers": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    }
  },
  "required": ["prompts"],
  "anyOf": [
    {"required": ["urls"]},
    {"required": ["documents"]}
  ]
}`

type batchRequest struct {
	URLs      []string      `json:"urls"`
	Documents []rawDocument `json:"documents"`
	Prompts   []string      `json:"prompts"`
	Providers []string      `json:"providers"`
}

type rawDocument struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type batchResponse struct {
	ID      string          `json:"id"`
	Files   []fileResponse  `json:"files"`
	Skipped []skippedDetail `json:"skipped,omitempty"`
}

type fileResponse struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type skippedDetail struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

type batchHandler struct {
	runner   *batch.Runner
	schema   *jsonschema.Schema
	archives *archiveStore

	// zipBatch 可在测试中替换以注入打包失败。
	zipBatch func(*batch.Batch) ([]byte, error)
}

func newBatchHandler(runner *batch.Runner) (*batchHandler, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("batch.json", strings.NewReader(batchSchemaJSON)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("batch.json")
	if err != nil {
		return nil, fmt.Errorf("compile batch schema: %w", err)
	}
	return &batchHandler{
		runner:   runner,
		schema:   schema,
		archives: newArchiveStore(16),
		zipBatch: (*batch.Batch).Zip,
	}, nil
}

func (h *batchHandler) handleCreate(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if err := h.schema.Validate(decoded); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schema: " + err.Error()})
		return
	}
	var req batchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docs := make([]batch.Document, 0, len(req.URLs)+len(req.Documents))
	for _, u := range req.URLs {
		docs = append(docs, batch.Document{URL: u})
	}
	for _, d := range req.Documents {
		docs = append(docs, batch.Document{Raw: d.Text, Title: d.Title})
	}
	result, err := h.runner.Run(c.Request.Context(), docs, req.Prompts, req.Providers)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if archive, zerr := h.zipBatch(result); zerr == nil {
		h.archives.put(result.ID, archive)
	} else {
		// 打包失败不影响本次响应，但会让后续的压缩包下载 404
		logger.Warnf("批次打包失败 id=%s err=%v", result.ID, zerr)
	}
	resp := batchResponse{ID: result.ID}
	for _, f := range result.Files {
		resp.Files = append(resp.Files, fileResponse{Name: f.Name, Content: string(f.Content)})
	}
	for _, s := range result.Skipped {
		resp.Skipped = append(resp.Skipped, skippedDetail{Source: s.Source, Reason: s.Reason})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *batchHandler) handleArchive(c *gin.Context) {
	id := c.Param("id")
	data, ok := h.archives.get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found or expired"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", id))
	c.Data(http.StatusOK, "application/zip", data)
}

// archiveStore 只在内存里保留最近 N 个压缩包。批次历史不是本服务的职责。
type archiveStore struct {
	mu    sync.Mutex
	cap   int
	order []string
	data  map[string][]byte
}

func newArchiveStore(capacity int) *archiveStore {
	if capacity <= 0 {
		capacity = 8
	}
	return &archiveStore{cap: capacity, data: make(map[string][]byte)}
}

func (s *archiveStore) put(id string, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[id]; !exists {
		s.order = append(s.order, id)
	}
	s.data[id] = b
	for len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.data, oldest)
	}
}

func (s *archiveStore) get(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[id]
	return b, ok
}
