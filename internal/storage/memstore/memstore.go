// Package memstore is an in-process shipment store. Every read returns a deep
// copy taken under the lock, so readers see either the state before or after a
// save, never a partially merged history.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/pkg/errors"
)

type entry struct {
	shipment models.Shipment
	history  models.StatusHistory
}

type Store struct {
	mu     sync.RWMutex
	nextID uint64
	items  map[uint64]*entry
	now    func() time.Time
}

func New() *Store {
	return &Store{items: make(map[uint64]*entry), now: time.Now}
}

func (s *Store) Create(ctx context.Context, in models.ShipmentCreateInput) (models.Shipment, error) {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sh := models.Shipment{
		ID:                 s.nextID,
		OriginLabel:        in.OriginLabel,
		DestinationLabel:   in.DestinationLabel,
		TrackNumber:        models.StrPtr(strings.TrimSpace(in.TrackNumber)),
		LastStatusCategory: models.StatusCreated,
		LastStatusText:     models.ManualStatusText,
		NextCheckAt:        now,
		CreatedAt:          now,
	}
	s.items[sh.ID] = &entry{shipment: sh}
	return sh.Clone(), nil
}

func (s *Store) Load(ctx context.Context, id uint64) (models.Shipment, models.StatusHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[id]
	if !ok {
		return models.Shipment{}, nil, errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	return e.shipment.Clone(), e.history.Clone(), nil
}

// Save writes only reconciliation-owned fields and the history, as one unit.
// sh.Version must match the stored version, otherwise nothing is written and
// models.ErrVersionConflict is returned.
func (s *Store) Save(ctx context.Context, id uint64, sh models.Shipment, h models.StatusHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	if e.shipment.Version != sh.Version {
		return errors.Wrapf(models.ErrVersionConflict, "id=%d version=%d stored=%d", id, sh.Version, e.shipment.Version)
	}
	next := sh.Clone()
	cur := e.shipment
	cur.LastStatusCategory = next.LastStatusCategory
	cur.LastStatusText = next.LastStatusText
	cur.LastLocation = next.LastLocation
	if cur.LastUpdatedAt == nil || (next.LastUpdatedAt != nil && next.LastUpdatedAt.After(*cur.LastUpdatedAt)) {
		cur.LastUpdatedAt = next.LastUpdatedAt
	}
	cur.Version++
	e.shipment = cur
	e.history = h.Clone()
	return nil
}

func (s *Store) List(ctx context.Context) ([]models.Shipment, error) {
	s.mu.RLock()
	out := make([]models.Shipment, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e.shipment.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	delete(s.items, id)
	return nil
}

func (s *Store) AssignTrackNumber(ctx context.Context, id uint64, trackNumber string) (models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return models.Shipment{}, errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	e.shipment.TrackNumber = models.StrPtr(trackNumber)
	e.shipment.NextCheckAt = s.now().UTC()
	return e.shipment.Clone(), nil
}

// ClaimDueShipments returns tracked shipments whose next check is due and pushes
// their next check to now+lease so a concurrent claim does not pick them again.
func (s *Store) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for _, e := range s.items {
		if e.shipment.HasTrackNumber() && !e.shipment.NextCheckAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].shipment.NextCheckAt.Before(due[j].shipment.NextCheckAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]models.Shipment, 0, len(due))
	leaseUntil := now.UTC().Add(lease)
	for _, e := range due {
		e.shipment.NextCheckAt = leaseUntil
		out = append(out, e.shipment.Clone())
	}
	return out, nil
}

func (s *Store) ScheduleNextCheck(ctx context.Context, id uint64, at time.Time, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	e.shipment.NextCheckAt = at.UTC()
	if failed {
		e.shipment.CheckFailCount++
	} else {
		e.shipment.CheckFailCount = 0
	}
	return nil
}
