package shipments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	cachemocks "github.com/BearBump/ShipSync/internal/cache/mocks"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	shipmentsmocks "github.com/BearBump/ShipSync/internal/services/shipments/mocks"
)

type ServiceSuite struct {
	suite.Suite

	repo  *shipmentsmocks.MockRepository
	cache *cachemocks.MockBytesCache
	svc   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &shipmentsmocks.MockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.repo, s.cache, 10*time.Minute, nil)
}

func (s *ServiceSuite) TestCreate_TrimsAndCallsRepo() {
	want := models.ShipmentCreateInput{OriginLabel: "Склад", DestinationLabel: "Магазин", TrackNumber: "102104"}
	s.repo.On("Create", mock.Anything, want).
		Return(models.Shipment{ID: 1, LastStatusCategory: models.StatusCreated}, nil).
		Once()

	out, err := s.svc.Create(context.Background(), models.ShipmentCreateInput{
		OriginLabel: "  Склад ", DestinationLabel: "Магазин\n", TrackNumber: " 102104 ",
	})
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), out.ID)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestCreate_ValidateErrors() {
	_, err := s.svc.Create(context.Background(), models.ShipmentCreateInput{DestinationLabel: "B"})
	s.Require().ErrorIs(err, ErrInvalidInput)

	_, err = s.svc.Create(context.Background(), models.ShipmentCreateInput{OriginLabel: "A", DestinationLabel: "   "})
	s.Require().ErrorIs(err, ErrInvalidInput)

	long := make([]rune, maxLabelLen+1)
	for i := range long {
		long[i] = 'я'
	}
	_, err = s.svc.Create(context.Background(), models.ShipmentCreateInput{OriginLabel: string(long), DestinationLabel: "B"})
	s.Require().ErrorIs(err, ErrInvalidInput)

	s.repo.AssertNotCalled(s.T(), "Create", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGet_CacheHit_NoDB() {
	v := models.ShipmentView{Shipment: models.Shipment{ID: 7, LastStatusCategory: models.StatusInTransit}}
	b, _ := json.Marshal(v)

	s.cache.On("Get", mock.Anything, "shipment:7:view").
		Return(b, true, nil).
		Once()

	out, err := s.svc.Get(context.Background(), 7)
	s.Require().NoError(err)
	s.Require().Equal(uint64(7), out.Shipment.ID)
	s.Require().Equal(models.StatusInTransit, out.Shipment.LastStatusCategory)

	// хранилище не должно трогаться
	s.repo.AssertNotCalled(s.T(), "Load", mock.Anything, mock.Anything)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGet_CacheMissOrBroken_GoesToDBAndSets() {
	s.cache.On("Get", mock.Anything, "shipment:1:view").
		Return([]byte("not-json"), true, nil).
		Once()
	s.repo.On("Load", mock.Anything, uint64(1)).
		Return(models.Shipment{ID: 1}, models.StatusHistory(nil), nil).
		Once()
	// ошибки Set игнорируются
	s.cache.On("Set", mock.Anything, "shipment:1:view", mock.Anything, 10*time.Minute).
		Return(errors.New("set failed")).
		Once()

	out, err := s.svc.Get(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().NotNil(out.History)
	s.Require().Empty(out.History)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGet_CacheGetError_IsMiss() {
	s.cache.On("Get", mock.Anything, "shipment:2:view").
		Return([]byte(nil), false, errors.New("redis down")).
		Once()
	s.repo.On("Load", mock.Anything, uint64(2)).
		Return(models.Shipment{ID: 2}, models.StatusHistory{{RawLabel: "В пути"}}, nil).
		Once()
	s.cache.On("Set", mock.Anything, "shipment:2:view", mock.Anything, 10*time.Minute).Return(nil).Once()

	out, err := s.svc.Get(context.Background(), 2)
	s.Require().NoError(err)
	s.Require().Len(out.History, 1)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGet_TTLZero_TreatedAsDisabled() {
	svc := New(s.repo, s.cache, 0, nil)
	s.repo.On("Load", mock.Anything, uint64(1)).
		Return(models.Shipment{ID: 1}, models.StatusHistory(nil), nil).
		Once()

	_, err := svc.Get(context.Background(), 1)
	s.Require().NoError(err)
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGet_NotFound() {
	s.cache.On("Get", mock.Anything, "shipment:9:view").Return([]byte(nil), false, nil).Once()
	s.repo.On("Load", mock.Anything, uint64(9)).
		Return(models.Shipment{}, models.StatusHistory(nil), models.ErrNotFound).
		Once()

	_, err := s.svc.Get(context.Background(), 9)
	s.Require().ErrorIs(err, models.ErrNotFound)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestDelete_EvictsCache() {
	s.repo.On("Delete", mock.Anything, uint64(3)).Return(nil).Once()
	s.cache.On("Delete", mock.Anything, "shipment:3:view").Return(errors.New("redis down")).Once()

	s.Require().NoError(s.svc.Delete(context.Background(), 3))
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestDelete_NotFound_NoEviction() {
	s.repo.On("Delete", mock.Anything, uint64(3)).Return(models.ErrNotFound).Once()

	err := s.svc.Delete(context.Background(), 3)
	s.Require().ErrorIs(err, models.ErrNotFound)
	s.cache.AssertNotCalled(s.T(), "Delete", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestAssignTrackNumber() {
	track := "T-1"
	s.repo.On("AssignTrackNumber", mock.Anything, uint64(4), "T-1").
		Return(models.Shipment{ID: 4, TrackNumber: &track}, nil).
		Once()
	s.cache.On("Delete", mock.Anything, "shipment:4:view").Return(nil).Once()

	out, err := s.svc.AssignTrackNumber(context.Background(), 4, "  T-1 ")
	s.Require().NoError(err)
	s.Require().Equal("T-1", *out.TrackNumber)

	_, err = s.svc.AssignTrackNumber(context.Background(), 4, "   ")
	s.Require().ErrorIs(err, ErrInvalidInput)

	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestList_PassesThrough() {
	s.repo.On("List", mock.Anything).Return([]models.Shipment{{ID: 2}, {ID: 1}}, nil).Once()

	out, err := s.svc.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(out, 2)

	s.repo.On("List", mock.Anything).Return(nil, errors.New("db down")).Once()
	_, err = s.svc.List(context.Background())
	s.Require().Error(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
