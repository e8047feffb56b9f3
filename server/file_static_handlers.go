package server

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
)

//go:embed static/*
var staticFiles embed.FS

// asset is an embedded stylesheet or image ready to serve
type asset struct {
	data        []byte
	contentType string
	etag        string
}

var (
	assetsOnce sync.Once
	assets     map[string]asset
	assetsErr  error
)

// loadAssets reads every embedded static file once, keyed by its URL path
// without the leading slash (e.g. "css/app.css")
func loadAssets() (map[string]asset, error) {
	assetsOnce.Do(func() {
		root, err := fs.Sub(staticFiles, "static")
		if err != nil {
			assetsErr = fmt.Errorf("static sub filesystem: %w", err)
			return
		}
		assets = map[string]asset{}
		assetsErr = fs.WalkDir(root, ".", func(name string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			data, err := fs.ReadFile(root, name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			ctype := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
			if ctype == "" {
				ctype = http.DetectContentType(data)
			}
			if strings.HasPrefix(ctype, "text/") && !strings.Contains(ctype, "charset=") {
				ctype += "; charset=utf-8"
			}
			sum := sha256.Sum256(data)
			assets[name] = asset{data: data, contentType: ctype, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}
			return nil
		})
	})
	return assets, assetsErr
}

// StreamFile writes the embedded asset at name, answering 304 when the
// browser already holds the current version
func StreamFile(w http.ResponseWriter, r *http.Request, name string) error {
	all, err := loadAssets()
	if err != nil {
		return err
	}
	a, ok := all[path.Clean(name)]
	if !ok {
		return fmt.Errorf("static file %s: %w", name, fs.ErrNotExist)
	}

	w.Header().Set("ETag", a.etag)
	if r.Header.Get("If-None-Match") == a.etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}
	w.Header().Set("Content-Type", a.contentType)
	if _, err := w.Write(a.data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
