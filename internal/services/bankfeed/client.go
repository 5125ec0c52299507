package bankfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction is one record as the bank feed collaborator delivers it.
// Amounts are always non-negative; the sign is encoded in Type.
type RawTransaction struct {
	ID           string          `json:"id,omitempty"`
	Date         string          `json:"date"`           // DD-MM-YYYY
	Time         string          `json:"time,omitempty"` // HH:MM
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency,omitempty"`
	Type         string          `json:"type"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference,omitempty"`
	Account      string          `json:"account,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
}

type FetchResult struct {
	Success      bool             `json:"success"`
	Transactions []RawTransaction `json:"transactions"`
	Message      string           `json:"message,omitempty"`
}

type Client interface {
	FetchTransactions(ctx context.Context, daysBack int) (*FetchResult, error)
}

type HTTPClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) FetchTransactions(ctx context.Context, daysBack int) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transactions?days_back="+strconv.Itoa(daysBack), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bank feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bank feed returned %d: %s", resp.StatusCode, body)
	}

	var result FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding bank feed response: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("bank feed error: %s", result.Message)
	}
	return &result, nil
}
