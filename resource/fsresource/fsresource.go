// Package fsresource exposes a directory tree as MCP resources: an
// mcp.Resource per matching file plus a matching mcp.ResourceHandlerFunc
// that reads file contents, built strictly on the engine's public
// registration surface (§4.12 of SPEC_FULL.md). Path filtering uses
// github.com/gobwas/glob for exclude-pattern matching.
package fsresource

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/haldor-dev/go-mcp"
)

// Server walks root and returns one mcp.Resource per file whose path
// (relative to root, always using '/' separators) does not match any
// exclude pattern, plus a single ResourceHandlerFunc capable of reading
// any of them. Both results are meant to be passed to
// mcp.ServerSession.RegisterResource, once per listed resource.
func Server(root string, excludePatterns ...string) ([]mcp.Resource, mcp.ResourceHandlerFunc, error) {
	compiled := make([]glob.Glob, 0, len(excludePatterns))
	for _, pattern := range excludePatterns {
		patterns := []string{pattern}
		if !strings.Contains(pattern, "*") {
			// A bare name excludes a directory of that name at any depth,
			// including directly under root.
			patterns = []string{pattern + "/**", "**/" + pattern + "/**"}
		}
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return nil, nil, fmt.Errorf("fsresource: compile exclude pattern %q: %w", p, err)
			}
			compiled = append(compiled, g)
		}
	}

	var resources []mcp.Resource
	uriToPath := make(map[string]string)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, g := range compiled {
			if g.Match(rel) {
				return nil
			}
		}

		uri := "file:///" + rel
		resources = append(resources, mcp.Resource{
			URI:      uri,
			Name:     rel,
			MimeType: mimeTypeFor(path),
		})
		uriToPath[uri] = path
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fsresource: walk %s: %w", root, err)
	}

	return resources, readHandler(uriToPath), nil
}

func readHandler(uriToPath map[string]string) mcp.ResourceHandlerFunc {
	return func(_ context.Context, uri string) (mcp.ReadResourceResult, error) {
		path, ok := uriToPath[uri]
		if !ok {
			return mcp.ReadResourceResult{}, fmt.Errorf("fsresource: unknown resource %q", uri)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return mcp.ReadResourceResult{}, fmt.Errorf("fsresource: read %s: %w", path, err)
		}

		mimeType := mimeTypeFor(path)
		content := mcp.ResourceContent{URI: uri, MimeType: mimeType}
		if utf8.Valid(data) {
			content.Text = string(data)
		} else {
			content.Blob = base64.StdEncoding.EncodeToString(data)
		}
		return mcp.ReadResourceResult{Contents: []mcp.ResourceContent{content}}, nil
	}
}

func mimeTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
