package batch

import (
	"gopkg.in/yaml.v3"
)

const manifestName = "manifest.yaml"

type manifest struct {
	ID          string         `yaml:"id"`
	GeneratedAt string         `yaml:"generated_at"`
	Files       []string       `yaml:"files"`
	Skipped     []skippedEntry `yaml:"skipped,omitempty"`
}

type skippedEntry struct {
	Source string `yaml:"source"`
	Reason string `yaml:"reason"`
}

// Manifest 渲染批次清单（YAML），与报告一起打包交付。
func (b *Batch) Manifest() ([]byte, error) {
	m := manifest{
		ID:          b.ID,
		GeneratedAt: b.GeneratedAt.Format("2006-01-02 15:04:05"),
	}
	for _, f := range b.Files {
		m.Files = append(m.Files, f.Name)
	}
	for _, s := range b.Skipped {
		m.Skipped = append(m.Skipped, skippedEntry{Source: s.Source, Reason: s.Reason})
	}
	return yaml.Marshal(m)
}
