package emulatorv1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/ShipSync/internal/integrations/courier"
	"github.com/BearBump/ShipSync/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	carrier string
	httpc   *http.Client
}

func New(baseURL, apiKey, carrierCode string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if carrierCode == "" {
		carrierCode = "CDEK"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		carrier: carrierCode,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type respEvent struct {
	StatusCode  string `json:"status_code"`
	StatusLabel string `json:"status_label"`
	EventTime   string `json:"event_time"`
	Location    string `json:"location,omitempty"`
}

type respBody struct {
	TrackNumber string      `json:"track_number"`
	OrderNumber string      `json:"order_number,omitempty"`
	Recipient   string      `json:"recipient,omitempty"`
	Cost        json.Number `json:"cost,omitempty"`
	Events      []respEvent `json:"events"`
}

func (c *Client) FetchTracking(ctx context.Context, trackNumber string) (models.TrackingBatch, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TrackingBatch{}, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/v1/tracking/%s/%s", url.PathEscape(c.carrier), url.PathEscape(trackNumber))
	q := u.Query()
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.TrackingBatch{}, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.TrackingBatch{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return models.TrackingBatch{}, courier.HTTPStatusError(resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return models.TrackingBatch{}, courier.MalformedError(errors.Wrap(err, "decode"))
	}
	if rb.TrackNumber != "" && rb.TrackNumber != trackNumber {
		return models.TrackingBatch{}, courier.MalformedError(fmt.Errorf("feed for %q, asked %q", rb.TrackNumber, trackNumber))
	}

	batch := models.TrackingBatch{Records: make([]models.RawStatus, 0, len(rb.Events))}
	for _, e := range rb.Events {
		batch.Records = append(batch.Records, models.RawStatus{
			Timestamp: e.EventTime,
			Code:      e.StatusCode,
			Label:     e.StatusLabel,
			Location:  e.Location,
		})
	}
	if rb.OrderNumber != "" || rb.Recipient != "" || rb.Cost != "" {
		batch.Meta = &models.BatchMeta{OrderNumber: rb.OrderNumber, Recipient: rb.Recipient, Cost: rb.Cost.String()}
	}
	return batch, nil
}
