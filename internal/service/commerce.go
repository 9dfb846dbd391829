package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"orderdesk/internal/cache"
	"orderdesk/internal/label"
	"orderdesk/internal/model"
)

// bulkConcurrency caps parallel per-order writes in a bulk status change.
const bulkConcurrency = 4

// RemoteError is a rejected request. Message is the server's human-readable
// reason when it sent one.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("commerce API: status %d", e.Status)
	}
	return fmt.Sprintf("commerce API: %s", e.Message)
}

// IsRemoteError reports whether err was returned by the commerce API itself
// rather than the transport.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// CommerceClient talks to the commerce and courier backend. It is the
// cache's system of record.
type CommerceClient struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ cache.Remote = (*CommerceClient)(nil)

func NewCommerceClient(baseURL, token string) *CommerceClient {
	return &CommerceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type ordersResponse struct {
	Orders []model.Order `json:"orders"`
}

func (c *CommerceClient) FetchOrders(ctx context.Context) ([]model.Order, error) {
	var res ordersResponse
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &res); err != nil {
		return nil, err
	}
	return res.Orders, nil
}

type tagsRequest struct {
	Tags label.Labels `json:"tags"`
}

func (c *CommerceClient) ReplaceTags(ctx context.Context, id int64, tags label.Labels) error {
	return c.do(ctx, http.MethodPut, orderPath(id, "tags"), tagsRequest{Tags: tags}, nil)
}

func (c *CommerceClient) ReplaceNote(ctx context.Context, id int64, note string) error {
	body := struct {
		Note string `json:"note"`
	}{note}
	return c.do(ctx, http.MethodPut, orderPath(id, "note"), body, nil)
}

func (c *CommerceClient) SetPriority(ctx context.Context, id int64, on bool) error {
	body := struct {
		Priority bool `json:"priority"`
	}{on}
	return c.do(ctx, http.MethodPut, orderPath(id, "priority"), body, nil)
}

func (c *CommerceClient) ReplaceStatus(ctx context.Context, id int64, tags label.Labels) error {
	return c.do(ctx, http.MethodPut, orderPath(id, "status"), tagsRequest{Tags: tags}, nil)
}

func (c *CommerceClient) ReplaceDates(ctx context.Context, id int64, dates cache.DateUpdate) error {
	return c.do(ctx, http.MethodPut, orderPath(id, "dates"), dates, nil)
}

// BulkReplaceStatus writes every update and fails if any single write fails.
// The backend has no batch endpoint, so writes fan out with bounded
// concurrency and the first error cancels the rest.
func (c *CommerceClient) BulkReplaceStatus(ctx context.Context, updates []cache.TagUpdate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, u := range updates {
		g.Go(func() error {
			if err := c.ReplaceStatus(gctx, u.OrderID, u.Tags); err != nil {
				return fmt.Errorf("order %d: %w", u.OrderID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *CommerceClient) MarkDeleted(ctx context.Context, id int64, tags label.Labels) error {
	return c.do(ctx, http.MethodPut, orderPath(id, "deleted"), tagsRequest{Tags: tags}, nil)
}

func (c *CommerceClient) CreateShipment(ctx context.Context, id int64, req model.ShipmentRequest) (model.Shipment, error) {
	var res model.Shipment
	if err := c.do(ctx, http.MethodPost, orderPath(id, "shipments"), req, &res); err != nil {
		return model.Shipment{}, err
	}
	if res.OrderID == 0 {
		res.OrderID = id
	}
	if res.Barcode == "" {
		return model.Shipment{}, errors.New("courier returned no barcode")
	}
	return res, nil
}

func orderPath(id int64, action string) string {
	return fmt.Sprintf("/orders/%d/%s", id, action)
}

func (c *CommerceClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	default:
		return &RemoteError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
}

// errorMessage pulls {"error": "..."} or {"message": "..."} out of a failure
// body, falling back to the trimmed raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
