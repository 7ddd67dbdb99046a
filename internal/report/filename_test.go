package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilename_StripsUnsafeRunes(t *testing.T) {
	ts := time.Date(2025, 8, 23, 10, 30, 45, 0, time.UTC)
	name := Filename("cdt", `某篇/文章: "标题"?`, "A", ts)
	assert.Equal(t, "cdt某篇文章标题_A_20250823_103045.md", name)
}

func TestFilename_CapsTitleLength(t *testing.T) {
	ts := time.Date(2025, 8, 23, 10, 30, 45, 0, time.UTC)
	long := strings.Repeat("字", 200)
	name := Filename("", long, "B", ts)
	assert.Equal(t, strings.Repeat("字", 48)+"_B_20250823_103045.md", name)
}

func TestFilename_EmptyTitleFallback(t *testing.T) {
	ts := time.Date(2025, 8, 23, 10, 30, 45, 0, time.UTC)
	name := Filename("", "///", "A", ts)
	assert.Equal(t, "untitled_A_20250823_103045.md", name)
}
