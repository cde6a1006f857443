package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"nexus-settlement/internal/pkg/httpclient"
	"nexus-settlement/internal/service/order/domain"
)

// HTTPOrderPlacer talks to the settlement API.
type HTTPOrderPlacer struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPOrderPlacer(client *httpclient.Client, baseURL string) *HTTPOrderPlacer {
	return &HTTPOrderPlacer{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type placeOrderResponse struct {
	Order struct {
		ID     string        `json:"id"`
		Status domain.Status `json:"status"`
	} `json:"order"`
	Breakdown domain.PriceBreakdown `json:"breakdown"`
	Replayed  bool                  `json:"replayed"`
}

// APIError is an error answer of the settlement API.
type APIError struct {
	Status  int
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func (p *HTTPOrderPlacer) PlaceOrder(ctx context.Context, idempotencyKey string, req PlacementRequest) (*Placement, error) {
	header := http.Header{}
	header.Set("Idempotency-Key", idempotencyKey)

	var resp placeOrderResponse
	if _, err := p.client.DoJSON(ctx, http.MethodPost, p.baseURL+"/orders", header, req, &resp); err != nil {
		return nil, apiError(err)
	}
	return &Placement{
		OrderID:   resp.Order.ID,
		Status:    resp.Order.Status,
		Breakdown: resp.Breakdown,
		Replayed:  resp.Replayed,
	}, nil
}

// Settings fetches the live shipping and loyalty rates.
func (p *HTTPOrderPlacer) Settings(ctx context.Context) (domain.Settings, error) {
	var s domain.Settings
	if _, err := p.client.DoJSON(ctx, http.MethodGet, p.baseURL+"/settings", nil, nil, &s); err != nil {
		return domain.Settings{}, apiError(err)
	}
	return s, nil
}

// apiError decodes the API error body. Field errors come back as a
// domain.ValidationError so the machine surfaces them like local ones.
func apiError(err error) error {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return err
	}
	apiErr := &APIError{Status: se.Status}
	if json.Unmarshal(se.Body, apiErr) != nil {
		return err
	}
	if len(apiErr.Fields) > 0 {
		return &domain.ValidationError{Fields: apiErr.Fields}
	}
	return apiErr
}
