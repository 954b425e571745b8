// Package httpgateway talks to a payment processor that speaks plain JSON over
// HTTP: POST /charges to charge and GET /charges/{reference} to look one up.
package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
)

const maxBody = 1 << 20

type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
}

func New(log *slog.Logger, httpClient *http.Client, baseURL string) *Client {
	return &Client{log: log, http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type chargeBody struct {
	Reference     string     `json:"reference"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	CardReference string     `json:"card_reference"`
	Buyer         buyerBody  `json:"buyer"`
	Lines         []lineBody `json:"lines"`
}

type buyerBody struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

type lineBody struct {
	ProductID      int64  `json:"product_id"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type chargeResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	DeclineCode   string `json:"decline_code"`
}

func (c *Client) Charge(ctx context.Context, req domain.Request) domain.Result {
	body := chargeBody{
		Reference:     req.Reference,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		CardReference: req.CardReference,
		Buyer:         buyerBody{UserID: req.Buyer.UserID, Email: req.Buyer.Email},
		Lines:         make([]lineBody, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		body.Lines = append(body.Lines, lineBody(l))
	}
	data, err := json.Marshal(body)
	if err != nil {
		return domain.Declined("invalid_request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(data))
	if err != nil {
		return domain.Declined("invalid_request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	return c.do(httpReq, req.Reference)
}

// Lookup asks the processor directly, so its 404 is authoritative and since
// is not needed.
func (c *Client) Lookup(ctx context.Context, reference string, _ time.Time) domain.Result {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/charges/"+url.PathEscape(reference), nil)
	if err != nil {
		return domain.Indeterminate(err.Error())
	}
	return c.do(httpReq, reference)
}

func (c *Client) do(req *http.Request, reference string) domain.Result {
	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return domain.Indeterminate("timeout")
		}
		return domain.Indeterminate(fmt.Sprintf("transport: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return domain.Indeterminate(fmt.Sprintf("read body: %v", err))
	}
	return c.classify(req.Method, resp.StatusCode, raw, reference)
}

// classify maps a processor response onto the three outcomes. Only an explicit
// decline (402, or a well-formed body saying so) is a decline; a GET that
// finds nothing means no charge exists under that reference.
func (c *Client) classify(method string, status int, raw []byte, reference string) domain.Result {
	if method == http.MethodGet && status == http.StatusNotFound {
		return domain.Declined("not_found")
	}
	if status >= 500 {
		return domain.Indeterminate(fmt.Sprintf("processor status %d", status))
	}

	var body chargeResponse
	parseErr := json.Unmarshal(raw, &body)

	switch {
	case status == http.StatusPaymentRequired:
		if parseErr != nil || body.DeclineCode == "" {
			return domain.Declined("card_declined")
		}
		return domain.Declined(body.DeclineCode)
	case status >= 200 && status < 300:
		if parseErr != nil {
			c.log.Warn("malformed processor response", "reference", reference, "err", parseErr)
			return domain.Indeterminate("malformed response")
		}
		switch body.Status {
		case "succeeded":
			if body.TransactionID == "" {
				return domain.Indeterminate("success without transaction id")
			}
			return domain.Success(body.TransactionID)
		case "declined":
			return domain.Declined(body.DeclineCode)
		default:
			return domain.Indeterminate(fmt.Sprintf("processor status %q", body.Status))
		}
	default:
		if parseErr == nil && body.Status == "declined" {
			return domain.Declined(body.DeclineCode)
		}
		return domain.Indeterminate(fmt.Sprintf("processor status %d", status))
	}
}
