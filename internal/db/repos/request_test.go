package repos

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stackdhq/stackd/internal/db/models"
)

type RequestRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	ctx  context.Context
	repo *RequestRepository
}

func (s *RequestRepositoryTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_json=1"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err, "failed to open database")

	s.Require().NoError(db.AutoMigrate(&models.ProvisioningRequest{}))

	s.db = db
	s.ctx = context.Background()
	s.repo = NewRequestRepository(db)
}

func (s *RequestRepositoryTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil {
		s.NoError(sqlDB.Close())
	}
}

func (s *RequestRepositoryTestSuite) newRequest(requester string) *models.ProvisioningRequest {
	config, err := json.Marshal(map[string]interface{}{"instance_type": "t3.micro"})
	s.Require().NoError(err)

	return &models.ProvisioningRequest{
		RequestID:      uuid.NewString(),
		Requester:      requester,
		ApprovalStatus: models.ApprovalStatusPending,
		Action:         "create",
		ResourceType:   "ec2",
		ResourceName:   "bastion",
		Environment:    "dev",
		Region:         "us-east-1",
		Config:         config,
	}
}

func (s *RequestRepositoryTestSuite) TestSaveAndFindByID() {
	req := s.newRequest("alice")
	s.Require().NoError(s.repo.Save(s.ctx, req))

	found, err := s.repo.FindByID(s.ctx, req.RequestID)
	s.Require().NoError(err)
	s.Equal(req.RequestID, found.RequestID)
	s.Equal("alice", found.Requester)
	s.Equal(models.ApprovalStatusPending, found.ApprovalStatus)
	s.JSONEq(`{"instance_type":"t3.micro"}`, string(found.Config))
}

func (s *RequestRepositoryTestSuite) TestSaveRequiresRequestID() {
	req := s.newRequest("alice")
	req.RequestID = ""
	s.Error(s.repo.Save(s.ctx, req))
}

func (s *RequestRepositoryTestSuite) TestFindByIDNotFound() {
	_, err := s.repo.FindByID(s.ctx, "nonexistent")
	s.ErrorIs(err, ErrRequestNotFound)
}

func (s *RequestRepositoryTestSuite) TestFindByRequesterNewestFirst() {
	first := s.newRequest("alice")
	s.Require().NoError(s.repo.Save(s.ctx, first))
	time.Sleep(10 * time.Millisecond)
	second := s.newRequest("alice")
	s.Require().NoError(s.repo.Save(s.ctx, second))
	other := s.newRequest("bob")
	s.Require().NoError(s.repo.Save(s.ctx, other))

	reqs, err := s.repo.FindByRequester(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(reqs, 2)
	s.Equal(second.RequestID, reqs[0].RequestID)
	s.Equal(first.RequestID, reqs[1].RequestID)
}

func (s *RequestRepositoryTestSuite) TestUpdatePersistsDecision() {
	req := s.newRequest("alice")
	s.Require().NoError(s.repo.Save(s.ctx, req))

	s.Require().NoError(req.Approve("bob"))
	req.JobID = uuid.NewString()
	s.Require().NoError(s.repo.Update(s.ctx, req))

	found, err := s.repo.FindByID(s.ctx, req.RequestID)
	s.Require().NoError(err)
	s.Equal(models.ApprovalStatusApproved, found.ApprovalStatus)
	s.Equal("bob", found.Approver)
	s.Equal(req.JobID, found.JobID)
	s.NotNil(found.DecidedAt)
}

func (s *RequestRepositoryTestSuite) TestListPendingExcludesDecided() {
	pending := s.newRequest("alice")
	s.Require().NoError(s.repo.Save(s.ctx, pending))

	decided := s.newRequest("alice")
	s.Require().NoError(s.repo.Save(s.ctx, decided))
	s.Require().NoError(decided.Reject("bob", "nope"))
	s.Require().NoError(s.repo.Update(s.ctx, decided))

	reqs, err := s.repo.ListPending(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(reqs, 1)
	s.Equal(pending.RequestID, reqs[0].RequestID)
}

func TestRequestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RequestRepositoryTestSuite))
}
