package messages

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// ReconcileRequested asks the worker to reconcile one shipment out of schedule.
type ReconcileRequested struct {
	ShipmentID uint64 `json:"shipment_id"`
}

func (m ReconcileRequested) Key() []byte {
	return []byte(strconv.FormatUint(m.ShipmentID, 10))
}

func (m ReconcileRequested) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	return b, errors.Wrap(err, "marshal reconcile requested")
}

func DecodeReconcileRequested(value []byte) (ReconcileRequested, error) {
	var m ReconcileRequested
	if err := json.Unmarshal(value, &m); err != nil {
		return ReconcileRequested{}, errors.Wrap(err, "unmarshal reconcile requested")
	}
	if m.ShipmentID == 0 {
		return ReconcileRequested{}, errors.New("reconcile requested: empty shipment_id")
	}
	return m, nil
}
