package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type HTTPStore struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPStore) FindOrders(ctx context.Context, filter Filter) ([]Order, error) {
	q := url.Values{}
	if !filter.CreatedAfter.IsZero() {
		q.Set("created_after", filter.CreatedAfter.Format(time.RFC3339))
	}
	if filter.FinancialStatus != "" {
		q.Set("financial_status", filter.FinancialStatus)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/orders?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("order store returned %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Orders []Order `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding order store response: %w", err)
	}
	return payload.Orders, nil
}

func (s *HTTPStore) UpdateOrderNote(ctx context.Context, orderID, shopID string, update NoteUpdate) error {
	body, err := json.Marshal(struct {
		ShopID string `json:"shop_id"`
		NoteUpdate
	}{ShopID: shopID, NoteUpdate: update})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		s.baseURL+"/orders/"+url.PathEscape(orderID)+"/note", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("order note update failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("order note update returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
