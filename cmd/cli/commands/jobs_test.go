package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "submit"}
	cmd.Flags().StringP("file", "f", "", "")
	cmd.Flags().String("resource-type", "", "")
	cmd.Flags().String("name", "", "")
	cmd.Flags().String("environment", "", "")
	cmd.Flags().String("region", "", "")
	cmd.Flags().String("priority", "", "")
	return cmd
}

func TestReadJobRequestFromFlags(t *testing.T) {
	cmd := newSubmitCommand()
	require.NoError(t, cmd.Flags().Set("resource-type", "s3"))
	require.NoError(t, cmd.Flags().Set("name", "reports"))
	require.NoError(t, cmd.Flags().Set("environment", "staging"))
	require.NoError(t, cmd.Flags().Set("priority", "high"))

	req, err := readJobRequest(cmd)
	require.NoError(t, err)
	assert.Equal(t, "s3", req.ResourceType)
	assert.Equal(t, "reports", req.Name)
	assert.Equal(t, "staging", req.Environment)
	assert.Equal(t, "high", req.Priority)
}

func TestReadJobRequestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	content := `{
		"resource_type": "ec2",
		"name": "bastion",
		"region": "eu-west-1",
		"config": {"instance_type": "t3.micro"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cmd := newSubmitCommand()
	require.NoError(t, cmd.Flags().Set("file", path))

	req, err := readJobRequest(cmd)
	require.NoError(t, err)
	assert.Equal(t, "ec2", req.ResourceType)
	assert.Equal(t, "bastion", req.Name)
	assert.Equal(t, "eu-west-1", req.Region)
	assert.Equal(t, "t3.micro", req.Config["instance_type"])
}

func TestReadJobRequestFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"resource_type": "ec2", "name": "bastion"}`), 0o600))

	cmd := newSubmitCommand()
	require.NoError(t, cmd.Flags().Set("file", path))
	require.NoError(t, cmd.Flags().Set("name", "jumpbox"))

	req, err := readJobRequest(cmd)
	require.NoError(t, err)
	assert.Equal(t, "ec2", req.ResourceType)
	assert.Equal(t, "jumpbox", req.Name)
}

func TestReadJobRequestMissingRequiredFields(t *testing.T) {
	cmd := newSubmitCommand()
	require.NoError(t, cmd.Flags().Set("name", "reports"))

	_, err := readJobRequest(cmd)
	assert.Error(t, err)
}
