// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package statusserver implements the optional local cache-introspection
// HTTP server exposed by "cjdk serve-status" (spec.md §6). It is grounded
// on the gin-based HTTP server in the teacher repository, repurposed from
// serving downloads to serving read-only cache metadata, Prometheus
// metrics, and a rendered cache report.
package statusserver

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/russross/blackfriday"

	"github.com/cachedjdk/cjdk/internal/conf"
)

// Server is the local cache-introspection HTTP server.
type Server struct {
	engine   *gin.Engine
	conf     *conf.Configuration
	registry prometheus.Gatherer
}

// New builds a Server backed by c's cache directory and reg's metrics.
func New(c *conf.Configuration, reg prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, conf: c, registry: reg}

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/cache", s.handleCache)
	engine.GET("/report", s.handleReport)
	if reg != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	return s
}

// ListenAndServe runs the server on addr until the process is terminated
// or an unrecoverable error occurs.
func (s *Server) ListenAndServe(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type cacheEntry struct {
	Prefix  string    `json:"prefix"`
	Key     string    `json:"key"`
	URL     string    `json:"url,omitempty"`
	Kind    string    `json:"kind"`
	ModTime time.Time `json:"mod_time"`
}

func (s *Server) listEntries() ([]cacheEntry, error) {
	root := filepath.Join(s.conf.CacheDir, "v0")
	var entries []cacheEntry
	prefixDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, err
	}
	for _, prefixDir := range prefixDirs {
		if !prefixDir.IsDir() || prefixDir.Name() == "fetching" {
			continue
		}
		prefixPath := filepath.Join(root, prefixDir.Name())
		keys, err := os.ReadDir(prefixPath)
		if err != nil {
			continue
		}
		for _, key := range keys {
			name := key.Name()
			if strings.HasSuffix(name, ".url") {
				continue
			}
			info, err := key.Info()
			if err != nil {
				continue
			}
			kind := "file"
			if info.IsDir() {
				kind = "directory"
			}
			url := ""
			if data, err := os.ReadFile(filepath.Join(prefixPath, name+".url")); err == nil {
				url = string(data)
			}
			entries = append(entries, cacheEntry{
				Prefix:  prefixDir.Name(),
				Key:     name,
				URL:     url,
				Kind:    kind,
				ModTime: info.ModTime(),
			})
		}
	}
	return entries, nil
}

func (s *Server) handleCache(c *gin.Context) {
	entries, err := s.listEntries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cache_dir": s.conf.CacheDir, "entries": entries})
}

func (s *Server) handleReport(c *gin.Context) {
	entries, err := s.listEntries()
	if err != nil {
		c.String(http.StatusInternalServerError, "%v", err)
		return
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# cjdk cache report\n\n")
	fmt.Fprintf(&md, "Cache directory: `%s`\n\n", s.conf.CacheDir)
	fmt.Fprintf(&md, "| Prefix | Key | Kind | URL | Modified |\n")
	fmt.Fprintf(&md, "|---|---|---|---|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&md, "| %s | %s | %s | %s | %s |\n",
			e.Prefix, e.Key, e.Kind, e.URL, e.ModTime.Format(time.RFC3339))
	}

	html := blackfriday.MarkdownCommon([]byte(md.String()))
	c.Data(http.StatusOK, "text/html; charset=utf-8", wrapHTML(html))
}

func wrapHTML(body []byte) []byte {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\"><title>cjdk cache report</title></head><body>")
	b.Write(body)
	b.WriteString("</body></html>")
	return []byte(b.String())
}
