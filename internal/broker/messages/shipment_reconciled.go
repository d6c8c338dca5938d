package messages

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ShipmentReconciled публикуется после каждой успешной сверки.
type ShipmentReconciled struct {
	EventID    string    `json:"event_id"`
	ShipmentID uint64    `json:"shipment_id"`
	Category   string    `json:"category"`
	StatusText string    `json:"status_text"`
	Location   *string   `json:"location,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	NewEvents  []Event   `json:"new_events,omitempty"`
}

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	RawLabel  string    `json:"raw_label"`
	Location  *string   `json:"location,omitempty"`
}

func NewShipmentReconciled(sh models.Shipment, added models.StatusHistory) ShipmentReconciled {
	msg := ShipmentReconciled{
		EventID:    uuid.NewString(),
		ShipmentID: sh.ID,
		Category:   string(sh.LastStatusCategory),
		StatusText: sh.LastStatusText,
		Location:   sh.LastLocation,
	}
	if sh.LastUpdatedAt != nil {
		msg.UpdatedAt = *sh.LastUpdatedAt
	}
	for _, e := range added {
		msg.NewEvents = append(msg.NewEvents, Event{
			Timestamp: e.Timestamp,
			Category:  string(e.Category),
			RawLabel:  e.RawLabel,
			Location:  e.Location,
		})
	}
	return msg
}

func (m ShipmentReconciled) Key() []byte {
	return []byte(strconv.FormatUint(m.ShipmentID, 10))
}

func (m ShipmentReconciled) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	return b, errors.Wrap(err, "marshal shipment reconciled")
}
