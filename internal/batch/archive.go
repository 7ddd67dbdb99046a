package batch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Zip 把全部报告与清单打进一个压缩包，供一次性下载。
func (b *Batch) Zip() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	manifest, err := b.Manifest()
	if err != nil {
		return nil, err
	}
	entries := append([]File{{Name: manifestName, Content: manifest}}, b.Files...)
	for _, f := range entries {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Content); err != nil {
			return nil, fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo 把报告与清单落到目录（目录不存在则创建）。
func (b *Batch) WriteTo(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	manifest, err := b.Manifest()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), manifest, 0o644); err != nil {
		return err
	}
	for _, f := range b.Files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}
