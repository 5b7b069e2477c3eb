// Package workspace prepares isolated per-job working directories for the
// external tool: a copy of the resolved template plus a rendered variables
// file.
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stackdhq/stackd/internal/types"
)

// VarsFileName is the variables file consumed by terraform.
const VarsFileName = "terraform.tfvars"

// ManagedByTag is the value injected into every job's ManagedBy tag.
const ManagedByTag = "stackd"

// Builder creates job workspaces under a single root directory.
type Builder struct {
	root string
}

// NewBuilder creates a Builder rooted at dir.
func NewBuilder(dir string) *Builder {
	return &Builder{root: dir}
}

// Dir returns the workspace directory for a job id. A fresh job always gets
// a fresh directory; job ids are unique so directories are never reused.
func (b *Builder) Dir(jobID string) string {
	return filepath.Join(b.root, jobID)
}

// Build copies the template into the job's workspace (directories merged,
// files overwritten) and renders the variables file. It is idempotent:
// re-running for the same job id and request produces byte-identical output.
func (b *Builder) Build(templateDir string, req *types.JobRequest) (string, error) {
	dir := b.Dir(req.JobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	if err := copyTree(templateDir, dir); err != nil {
		return "", fmt.Errorf("failed to copy template: %w", err)
	}

	vars := RenderVars(req)
	if err := os.WriteFile(filepath.Join(dir, VarsFileName), []byte(vars), 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", VarsFileName, err)
	}

	return dir, nil
}

// RenderVars renders the terraform.tfvars content for a request. Keys are
// emitted in sorted order so the output is deterministic.
func RenderVars(req *types.JobRequest) string {
	tags := map[string]interface{}{
		"ManagedBy":   ManagedByTag,
		"JobId":       req.JobID,
		"Environment": req.Environment,
	}
	for k, v := range req.Tags {
		tags[k] = v
	}

	vars := map[string]interface{}{
		"resource_name": req.Name,
		"environment":   req.Environment,
		"region":        req.Region,
		"tags":          tags,
	}
	for k, v := range req.Config {
		vars[k] = v
	}

	var sb strings.Builder
	for _, k := range sortedKeys(vars) {
		writeValue(&sb, k, vars[k], "")
	}
	return sb.String()
}

func writeValue(sb *strings.Builder, key string, value interface{}, indent string) {
	switch v := value.(type) {
	case map[string]interface{}:
		fmt.Fprintf(sb, "%s%s = {\n", indent, key)
		for _, k := range sortedKeys(v) {
			writeValue(sb, k, v[k], indent+"  ")
		}
		fmt.Fprintf(sb, "%s}\n", indent)
	case map[string]string:
		m := make(map[string]interface{}, len(v))
		for k, s := range v {
			m[k] = s
		}
		writeValue(sb, key, m, indent)
	case string:
		fmt.Fprintf(sb, "%s%s = %q\n", indent, key, v)
	default:
		// Everything else is JSON-compatible and serialized structurally.
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte("null")
		}
		fmt.Fprintf(sb, "%s%s = %s\n", indent, key, data)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// copyTree recursively copies src into dst, merging directories and
// overwriting existing files.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		s := filepath.Join(src, entry.Name())
		d := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := os.MkdirAll(d, 0o750); err != nil {
				return err
			}
			if err := copyTree(s, d); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(s, d); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
