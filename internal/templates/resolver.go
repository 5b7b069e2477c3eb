// Package templates resolves a job's resource type to a workspace template
// directory on disk.
package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/stackdhq/stackd/internal/types"
)

// ErrNoTemplateAvailable is returned when no template directory exists at
// all under the templates root.
var ErrNoTemplateAvailable = errors.New("no template available")

// ConfigTemplateKey is the configuration map key holding an explicit
// template choice.
const ConfigTemplateKey = "template"

// TagTemplateKey is the tags map key holding a template choice.
const TagTemplateKey = "Template"

// templateMapping maps resource types to their primary template name.
var templateMapping = map[types.ResourceType]string{
	types.ResourceEC2:        "ec2",
	types.ResourceS3:         "s3",
	types.ResourceVPC:        "vpc",
	types.ResourceRDS:        "rds",
	types.ResourceWebApp:     "web-app-stack",
	types.ResourceAPIService: "api-service-stack",
}

// templateFallbacks lists alternative templates to try, in order, when a
// resource type's primary template directory does not exist.
var templateFallbacks = map[types.ResourceType][]string{
	types.ResourceWebApp:     {"web_app", "ec2"},
	types.ResourceAPIService: {"api_service", "web-app-stack", "ec2"},
	types.ResourceRDS:        {"vpc"},
}

// Resolver locates template directories under a single root.
type Resolver struct {
	root string
}

// NewResolver creates a resolver over the given templates root directory.
func NewResolver(root string) *Resolver {
	return &Resolver{root: root}
}

// Resolve picks the template directory for a job request. The resolution
// order is: explicit `template` config key, `Template` tag, the static
// mapping table, the resource type's fallback list, and finally the first
// template directory available on disk. First match with an existing
// directory wins. Any selection past the first candidate is reported in
// warnings so operators can see deviations from the intended template.
func (r *Resolver) Resolve(req *types.JobRequest) (dir string, warnings []string, err error) {
	candidates := r.candidates(req)

	for i, name := range candidates {
		d := filepath.Join(r.root, name)
		if !dirExists(d) {
			warnings = append(warnings, fmt.Sprintf("template %q not found, trying next candidate", name))
			continue
		}
		if i > 0 {
			warnings = append(warnings, fmt.Sprintf("using fallback template %q for resource type %q", name, req.ResourceType))
		}
		return d, warnings, nil
	}

	// Last resort: the first template directory that exists at all.
	name, ok := r.firstAvailable()
	if !ok {
		return "", warnings, fmt.Errorf("%w under %s", ErrNoTemplateAvailable, r.root)
	}
	warnings = append(warnings, fmt.Sprintf("no candidate template for resource type %q, using first available %q", req.ResourceType, name))
	return filepath.Join(r.root, name), warnings, nil
}

// candidates builds the ordered, de-duplicated template name list for a
// request.
func (r *Resolver) candidates(req *types.JobRequest) []string {
	var names []string
	if v, ok := req.Config[ConfigTemplateKey].(string); ok && v != "" {
		names = append(names, v)
	}
	if v := req.Tags[TagTemplateKey]; v != "" {
		names = append(names, v)
	}
	if v, ok := templateMapping[req.ResourceType]; ok {
		names = append(names, v)
	}
	names = append(names, templateFallbacks[req.ResourceType]...)

	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// firstAvailable returns the lexically first template directory under the
// root, if any exists.
func (r *Resolver) firstAvailable() (string, bool) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return "", false
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return names[0], true
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
