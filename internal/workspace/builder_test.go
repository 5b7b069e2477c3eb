package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdhq/stackd/internal/types"
)

func testRequest() *types.JobRequest {
	req := types.NewJobRequest(types.ActionCreate, types.ResourceS3, "reports")
	req.JobID = "job-fixed-id"
	req.Tags["Team"] = "data"
	req.Config["versioning_enabled"] = true
	req.Config["lifecycle_days"] = float64(30)
	return req
}

func TestRenderVarsContainsRequiredKeys(t *testing.T) {
	vars := RenderVars(testRequest())

	assert.Contains(t, vars, `resource_name = "reports"`)
	assert.Contains(t, vars, `environment = "dev"`)
	assert.Contains(t, vars, `region = "us-east-1"`)
	assert.Contains(t, vars, "tags = {")
	assert.Contains(t, vars, `ManagedBy = "stackd"`)
	assert.Contains(t, vars, `JobId = "job-fixed-id"`)
	assert.Contains(t, vars, `Environment = "dev"`)
	assert.Contains(t, vars, `Team = "data"`)
	assert.Contains(t, vars, "versioning_enabled = true")
	assert.Contains(t, vars, "lifecycle_days = 30")
}

func TestRenderVarsIsByteIdentical(t *testing.T) {
	req := testRequest()

	first := RenderVars(req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, RenderVars(req))
	}
}

func TestRenderVarsNestedMap(t *testing.T) {
	req := testRequest()
	req.Config["cors"] = map[string]interface{}{
		"allowed_origins": []interface{}{"*"},
		"max_age":         float64(300),
	}

	vars := RenderVars(req)
	assert.Contains(t, vars, "cors = {")
	assert.Contains(t, vars, `allowed_origins = ["*"]`)
	assert.Contains(t, vars, "max_age = 300")
}

func TestBuildCopiesTemplateAndWritesVars(t *testing.T) {
	template := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(template, "modules", "bucket"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(template, "main.tf"), []byte("# main"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(template, "modules", "bucket", "bucket.tf"), []byte("# bucket"), 0o600))

	b := NewBuilder(t.TempDir())
	req := testRequest()

	dir, err := b.Build(template, req)
	require.NoError(t, err)
	assert.Equal(t, b.Dir(req.JobID), dir)

	data, err := os.ReadFile(filepath.Join(dir, "main.tf"))
	require.NoError(t, err)
	assert.Equal(t, "# main", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "modules", "bucket", "bucket.tf"))
	require.NoError(t, err)
	assert.Equal(t, "# bucket", string(data))

	vars, err := os.ReadFile(filepath.Join(dir, VarsFileName))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(vars), `resource_name = "reports"`))
}

func TestBuildIsIdempotent(t *testing.T) {
	template := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(template, "main.tf"), []byte("# main"), 0o600))

	b := NewBuilder(t.TempDir())
	req := testRequest()

	_, err := b.Build(template, req)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(b.Dir(req.JobID), VarsFileName))
	require.NoError(t, err)

	_, err = b.Build(template, req)
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(b.Dir(req.JobID), VarsFileName))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
