package fake

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
)

type script struct {
	batch models.TrackingBatch
	err   error
}

// Gateway: перевозчик в памяти. Для треков без сценария отдаёт детерминированную
// ленту по хэшу трек-номера: часть треков становится DELIVERED.
type Gateway struct {
	mu      sync.Mutex
	scripts map[string]script
	calls   map[string]int
	base    time.Time
}

func New() *Gateway {
	return &Gateway{
		scripts: make(map[string]script),
		calls:   make(map[string]int),
		base:    time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (g *Gateway) SetBatch(trackNumber string, b models.TrackingBatch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[trackNumber] = script{batch: b}
}

func (g *Gateway) SetError(trackNumber string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[trackNumber] = script{err: err}
}

func (g *Gateway) Calls(trackNumber string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[trackNumber]
}

func (g *Gateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *Gateway) FetchTracking(ctx context.Context, trackNumber string) (models.TrackingBatch, error) {
	if err := ctx.Err(); err != nil {
		return models.TrackingBatch{}, err
	}

	g.mu.Lock()
	g.calls[trackNumber]++
	sc, ok := g.scripts[trackNumber]
	g.mu.Unlock()

	if ok {
		if sc.err != nil {
			return models.TrackingBatch{}, sc.err
		}
		return sc.batch, nil
	}
	return g.generated(trackNumber), nil
}

func (g *Gateway) generated(trackNumber string) models.TrackingBatch {
	h := fnv.New32a()
	_, _ = h.Write([]byte(trackNumber))
	v := h.Sum32()

	recs := []models.RawStatus{
		{Timestamp: g.base.Format(time.RFC3339), Code: "CREATED", Label: "Заказ создан"},
		{Timestamp: g.base.Add(6 * time.Hour).Format(time.RFC3339), Code: "IN_TRANSIT", Label: "В пути", Location: "Москва"},
	}
	// 20% треков считаем доставленными
	if v%5 == 0 {
		recs = append(recs, models.RawStatus{
			Timestamp: g.base.Add(48 * time.Hour).Format(time.RFC3339),
			Code:      "DELIVERED",
			Label:     "Вручено",
		})
	}
	return models.TrackingBatch{Records: recs}
}
