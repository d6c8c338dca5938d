package courier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/pkg/errors"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimited refuses calls above perMinute per courier instead of hammering the vendor.
type RateLimited struct {
	next      Gateway
	rl        RateLimiter
	name      string
	perMinute int64
	now       func() time.Time
}

func NewRateLimited(next Gateway, rl RateLimiter, name string, perMinute int64) *RateLimited {
	return &RateLimited{next: next, rl: rl, name: name, perMinute: perMinute, now: time.Now}
}

func (g *RateLimited) FetchTracking(ctx context.Context, trackNumber string) (models.TrackingBatch, error) {
	if g.rl != nil && g.perMinute > 0 {
		minuteKey := fmt.Sprintf("rl:courier:%s:%s", g.name, g.now().UTC().Format("200601021504"))
		allowed, n, err := g.rl.Allow(ctx, minuteKey, g.perMinute, 70*time.Second)
		if err != nil {
			return models.TrackingBatch{}, errors.Wrap(err, "courier rate limit")
		}
		if !allowed {
			return models.TrackingBatch{}, &GatewayError{
				Class:      ClassRateLimited,
				StatusCode: http.StatusTooManyRequests,
				Message:    fmt.Sprintf("local limit %d/min exceeded (%d)", g.perMinute, n),
			}
		}
	}
	return g.next.FetchTracking(ctx, trackNumber)
}
