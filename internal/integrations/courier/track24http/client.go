package track24http

import (
	"context"
	"encoding/json"
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
	domain  string
	httpc   *http.Client
}

func New(baseURL, apiKey, domain string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		domain:  domain,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type track24Resp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		OrderNumber string `json:"orderNumber"`
		Recipient   string `json:"recipient"`
		Events      []struct {
			OperationDateTime        string `json:"operationDateTime"`
			OperationAttribute       string `json:"operationAttribute"`
			OperationType            string `json:"operationType"`
			OperationPlaceName       string `json:"operationPlaceName"`
			OperationPlacePostalCode string `json:"operationPlacePostalCode"`
			Source                   string `json:"source"`
		} `json:"events"`
	} `json:"data"`
}

// FetchTracking only reshapes the feed; timestamps stay textual ("02.07.2014 19:16:00")
// and are parsed by the merger so one bad record cannot fail the batch.
func (c *Client) FetchTracking(ctx context.Context, trackNumber string) (models.TrackingBatch, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.TrackingBatch{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/tracking.json.php"

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	q.Set("domain", c.domain)
	q.Set("code", trackNumber)
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

	var r track24Resp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.TrackingBatch{}, courier.MalformedError(errors.Wrap(err, "decode"))
	}
	if r.Status != "ok" {
		msg := "status=" + r.Status
		if r.Message != "" {
			msg += ": " + r.Message
		}
		return models.TrackingBatch{}, courier.VendorError(msg)
	}
	if r.Data == nil {
		return models.TrackingBatch{}, courier.MalformedError(errors.New("missing data"))
	}

	batch := models.TrackingBatch{Records: make([]models.RawStatus, 0, len(r.Data.Events))}
	for _, e := range r.Data.Events {
		batch.Records = append(batch.Records, models.RawStatus{
			Timestamp: e.OperationDateTime,
			Code:      e.OperationType,
			Label:     e.OperationAttribute,
			Location:  e.OperationPlaceName,
		})
	}
	if r.Data.OrderNumber != "" || r.Data.Recipient != "" {
		batch.Meta = &models.BatchMeta{OrderNumber: r.Data.OrderNumber, Recipient: r.Data.Recipient}
	}
	return batch, nil
}
