package models

import (
	"time"

	"github.com/pkg/errors"
)

// StatusCategory: канонический статус отправления, не зависящий от словаря перевозчика.
type StatusCategory string

const (
	StatusCreated             StatusCategory = "CREATED"
	StatusPendingRegistration StatusCategory = "PENDING_REGISTRATION"
	StatusAccepted            StatusCategory = "ACCEPTED"
	StatusInTransit           StatusCategory = "IN_TRANSIT"
	StatusReadyForPickup      StatusCategory = "READY_FOR_PICKUP"
	StatusDelivered           StatusCategory = "DELIVERED"
	StatusUnknown             StatusCategory = "UNKNOWN"
)

// Текст статуса для вручную созданной поставки.
const ManualStatusText = "Создано вручную"

var ErrNotFound = errors.New("shipment not found")

// ErrVersionConflict: поставку сохранили после того, как мы её прочитали.
var ErrVersionConflict = errors.New("shipment changed concurrently")

func (c StatusCategory) Valid() bool {
	switch c {
	case StatusCreated, StatusPendingRegistration, StatusAccepted, StatusInTransit,
		StatusReadyForPickup, StatusDelivered, StatusUnknown:
		return true
	}
	return false
}

// ParseStatusCategory never fails: anything outside the enum is UNKNOWN.
func ParseStatusCategory(s string) StatusCategory {
	c := StatusCategory(s)
	if !c.Valid() {
		return StatusUnknown
	}
	return c
}

type Shipment struct {
	ID               uint64 `json:"id"`
	OriginLabel      string `json:"originLabel"`
	DestinationLabel string `json:"destinationLabel"`
	// nil: трек-номер не выдан (это нормальное состояние, не ошибка).
	TrackNumber *string `json:"trackNumber,omitempty"`

	LastStatusCategory StatusCategory `json:"lastStatusCategory"`
	LastStatusText     string         `json:"lastStatusText"`
	LastLocation       *string        `json:"lastLocation,omitempty"`
	LastUpdatedAt      *time.Time     `json:"lastUpdatedAt,omitempty"`

	// Scheduling state for the refresher, never touched by reconciliation.
	NextCheckAt    time.Time `json:"nextCheckAt"`
	CheckFailCount int32     `json:"checkFailCount"`

	CreatedAt time.Time `json:"createdAt"`

	// Version grows with every saved reconciliation. Save only succeeds
	// against the version that was loaded.
	Version int64 `json:"-"`
}

func (s *Shipment) HasTrackNumber() bool {
	return s.TrackNumber != nil && *s.TrackNumber != ""
}

// Current returns the status snapshot currently stored on the shipment.
func (s *Shipment) Current() CurrentStatus {
	return CurrentStatus{
		Category: s.LastStatusCategory,
		Text:     s.LastStatusText,
		Location: cloneString(s.LastLocation),
	}
}

func (s Shipment) Clone() Shipment {
	out := s
	out.TrackNumber = cloneString(s.TrackNumber)
	out.LastLocation = cloneString(s.LastLocation)
	if s.LastUpdatedAt != nil {
		t := *s.LastUpdatedAt
		out.LastUpdatedAt = &t
	}
	return out
}

type StatusEvent struct {
	// Время события по данным перевозчика, а не время сверки.
	Timestamp time.Time      `json:"timestamp"`
	Category  StatusCategory `json:"category"`
	RawLabel  string         `json:"rawLabel"`
	Location  *string        `json:"location,omitempty"`
}

// EventKey identifies a real-world event: (timestamp, raw label, location).
// A nil location and an empty one are the same key.
type EventKey struct {
	At       int64
	RawLabel string
	Location string
}

func (e StatusEvent) Key() EventKey {
	loc := ""
	if e.Location != nil {
		loc = *e.Location
	}
	return EventKey{At: e.Timestamp.UnixNano(), RawLabel: e.RawLabel, Location: loc}
}

// StatusHistory is ascending by Timestamp; equal timestamps keep feed order.
type StatusHistory []StatusEvent

func (h StatusHistory) Clone() StatusHistory {
	if h == nil {
		return nil
	}
	out := make(StatusHistory, len(h))
	for i, e := range h {
		e.Location = cloneString(e.Location)
		out[i] = e
	}
	return out
}

type CurrentStatus struct {
	Category StatusCategory `json:"category"`
	Text     string         `json:"text"`
	Location *string        `json:"location,omitempty"`
	At       *time.Time     `json:"at,omitempty"`
}

// RawStatus: одна запись из ленты перевозчика в исходном виде.
// Пустые Code/Label/Location означают отсутствие значения.
type RawStatus struct {
	Timestamp string
	Code      string
	Label     string
	Location  string
}

// BatchMeta is passed through to callers and never interpreted.
type BatchMeta struct {
	OrderNumber string `json:"orderNumber,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Cost        string `json:"cost,omitempty"`
}

type TrackingBatch struct {
	Records []RawStatus
	Meta    *BatchMeta
}

type ShipmentView struct {
	Shipment Shipment      `json:"shipment"`
	History  StatusHistory `json:"history"`
}

type ShipmentCreateInput struct {
	OriginLabel      string
	DestinationLabel string
	TrackNumber      string
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
