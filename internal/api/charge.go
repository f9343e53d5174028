package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ChargeSucceeded is the status the processor reports for a collected charge.
const ChargeSucceeded = "succeeded"

// Succeeded reports whether the processor collected the payment.
func (r *ChargeResult) Succeeded() bool {
	return r.Charge.Status == ChargeSucceeded
}

// Charge invokes the remote charge endpoint once. A fresh idempotency key
// is attached so a gateway that replays the request does not double charge.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if c.chargeURL == "" {
		return nil, errors.New("charge: no charge endpoint configured")
	}
	if req.Token == "" {
		return nil, fmt.Errorf("charge: payment token is required: %w", ErrInvalidInput)
	}
	if req.Charge.Amount <= 0 {
		return nil, fmt.Errorf("charge: amount must be positive: %w", ErrInvalidInput)
	}

	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())

	body, err := c.doRequest(ctx, http.MethodPost, strings.TrimSuffix(c.chargeURL, "/")+"/charge", req, header)
	if err != nil {
		return nil, fmt.Errorf("charge: %w", err)
	}

	var result ChargeResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("charge: unmarshal response: %w", err)
	}

	c.logger.Debug("charge completed",
		"status", result.Charge.Status,
		"amount", req.Charge.Amount,
		"currency", req.Charge.Currency,
	)
	return &result, nil
}
