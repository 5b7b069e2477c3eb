package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRequest() *ProvisioningRequest {
	return &ProvisioningRequest{
		RequestID:      "req-1",
		Requester:      "alice",
		ApprovalStatus: ApprovalStatusPending,
		Action:         "create",
		ResourceType:   "s3",
		ResourceName:   "reports",
	}
}

func TestApproveOnce(t *testing.T) {
	r := pendingRequest()

	require.NoError(t, r.Approve("bob"))
	assert.Equal(t, ApprovalStatusApproved, r.ApprovalStatus)
	assert.Equal(t, "bob", r.Approver)
	assert.NotNil(t, r.DecidedAt)

	// Second decision of any kind is rejected.
	assert.ErrorIs(t, r.Approve("carol"), ErrAlreadyDecided)
	assert.ErrorIs(t, r.Reject("carol", "late"), ErrAlreadyDecided)
	assert.Equal(t, "bob", r.Approver)
}

func TestRejectOnce(t *testing.T) {
	r := pendingRequest()

	require.NoError(t, r.Reject("bob", "budget"))
	assert.Equal(t, ApprovalStatusRejected, r.ApprovalStatus)
	assert.Equal(t, "budget", r.RejectionReason)

	assert.ErrorIs(t, r.Approve("carol"), ErrAlreadyDecided)
}

func TestApprovalStatusJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(ApprovalStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, `"approved"`, string(data))

	var s ApprovalStatus
	require.NoError(t, json.Unmarshal([]byte(`"rejected"`), &s))
	assert.Equal(t, ApprovalStatusRejected, s)

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &s))
}

func TestParseApprovalStatus(t *testing.T) {
	s, err := ParseApprovalStatus("pending")
	require.NoError(t, err)
	assert.Equal(t, ApprovalStatusPending, s)

	_, err = ParseApprovalStatus("nope")
	assert.Error(t, err)
}
