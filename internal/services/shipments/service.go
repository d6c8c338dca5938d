package shipments

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxLabelLen = 500

var ErrInvalidInput = errors.New("invalid input")

//go:generate mockery --name=Repository --output=mocks --outpkg=mocks --structname=MockRepository
type Repository interface {
	Create(ctx context.Context, in models.ShipmentCreateInput) (models.Shipment, error)
	Load(ctx context.Context, id uint64) (models.Shipment, models.StatusHistory, error)
	List(ctx context.Context) ([]models.Shipment, error)
	Delete(ctx context.Context, id uint64) error
	AssignTrackNumber(ctx context.Context, id uint64, trackNumber string) (models.Shipment, error)
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func New(repo Repository, c cache.BytesCache, cacheTTL time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: c, cacheTTL: cacheTTL, logger: logger}
}

func (s *Service) Create(ctx context.Context, in models.ShipmentCreateInput) (models.Shipment, error) {
	in.OriginLabel = strings.TrimSpace(in.OriginLabel)
	in.DestinationLabel = strings.TrimSpace(in.DestinationLabel)
	in.TrackNumber = strings.TrimSpace(in.TrackNumber)

	if in.OriginLabel == "" {
		return models.Shipment{}, errors.Wrap(ErrInvalidInput, "originLabel is required")
	}
	if in.DestinationLabel == "" {
		return models.Shipment{}, errors.Wrap(ErrInvalidInput, "destinationLabel is required")
	}
	if utf8.RuneCountInString(in.OriginLabel) > maxLabelLen || utf8.RuneCountInString(in.DestinationLabel) > maxLabelLen {
		return models.Shipment{}, errors.Wrap(ErrInvalidInput, "label is too long")
	}

	sh, err := s.repo.Create(ctx, in)
	if err != nil {
		return models.Shipment{}, errors.Wrap(err, "create shipment")
	}
	s.logger.Info("shipment created", zap.Uint64("shipment_id", sh.ID), zap.Bool("tracked", sh.HasTrackNumber()))
	return sh, nil
}

// Get отдаёт снимок "поставка + история". Кэш best effort, любые его ошибки
// означают поход в хранилище.
func (s *Service) Get(ctx context.Context, id uint64) (models.ShipmentView, error) {
	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, cache.ShipmentViewKey(id))
		if err == nil && ok {
			var v models.ShipmentView
			if json.Unmarshal(b, &v) == nil {
				return v, nil
			}
		}
	}

	sh, h, err := s.repo.Load(ctx, id)
	if err != nil {
		return models.ShipmentView{}, errors.Wrap(err, "load shipment")
	}
	if h == nil {
		h = models.StatusHistory{}
	}
	v := models.ShipmentView{Shipment: sh, History: h}

	if s.cacheEnabled() {
		b, _ := json.Marshal(v)
		if err := s.cache.Set(ctx, cache.ShipmentViewKey(id), b, s.cacheTTL); err != nil {
			s.logger.Debug("cache shipment view", zap.Uint64("shipment_id", id), zap.Error(err))
		}
	}
	return v, nil
}

func (s *Service) List(ctx context.Context) ([]models.Shipment, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list shipments")
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id uint64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete shipment")
	}
	s.evict(ctx, id)
	s.logger.Info("shipment deleted", zap.Uint64("shipment_id", id))
	return nil
}

// AssignTrackNumber is the only mutation besides reconciliation; route labels stay as created.
func (s *Service) AssignTrackNumber(ctx context.Context, id uint64, trackNumber string) (models.Shipment, error) {
	trackNumber = strings.TrimSpace(trackNumber)
	if trackNumber == "" {
		return models.Shipment{}, errors.Wrap(ErrInvalidInput, "trackNumber is required")
	}
	sh, err := s.repo.AssignTrackNumber(ctx, id, trackNumber)
	if err != nil {
		return models.Shipment{}, errors.Wrap(err, "assign track number")
	}
	s.evict(ctx, id)
	s.logger.Info("track number assigned", zap.Uint64("shipment_id", id), zap.String("track_number", trackNumber))
	return sh, nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}

func (s *Service) evict(ctx context.Context, id uint64) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Delete(ctx, cache.ShipmentViewKey(id)); err != nil {
		s.logger.Warn("evict shipment view", zap.Uint64("shipment_id", id), zap.Error(err))
	}
}
