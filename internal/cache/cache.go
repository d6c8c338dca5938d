package cache

import (
	"context"
	"fmt"
	"time"
)

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ShipmentViewKey: ключ снимка "поставка + история" для отображения.
func ShipmentViewKey(id uint64) string {
	return fmt.Sprintf("shipment:%d:view", id)
}
