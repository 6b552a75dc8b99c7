// Package apidocs loads the OpenAPI document served under /docs/api.
package apidocs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// DocumentPath is the document location relative to the project root.
const DocumentPath = "public/docs/v1/openapi.yml"

// Load parses and validates the document at path.
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document %s: %w", path, err)
	}
	return doc, nil
}

// FindBasePath returns the first candidate directory that contains the
// document, so binaries started from cmd/ or the repo root both find it.
func FindBasePath(candidates ...string) (string, error) {
	for _, base := range candidates {
		if _, err := os.Stat(filepath.Join(base, DocumentPath)); err == nil {
			return base, nil
		}
	}
	return "", fmt.Errorf("%s not found in %v", DocumentPath, candidates)
}

// Operations lists documented operations as "METHOD /path" using fiber's
// ":param" syntax, sorted.
func Operations(doc *openapi3.T) []string {
	var ops []string
	if doc == nil || doc.Paths == nil {
		return ops
	}
	for path, item := range doc.Paths.Map() {
		for method := range item.Operations() {
			ops = append(ops, strings.ToUpper(method)+" "+fiberPath(path))
		}
	}
	sort.Strings(ops)
	return ops
}

func fiberPath(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '{':
			b.WriteByte(':')
		case '}':
		default:
			b.WriteByte(path[i])
		}
	}
	return b.String()
}
