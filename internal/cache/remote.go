package cache

import (
	"context"
	"time"

	"orderdesk/internal/label"
	"orderdesk/internal/model"
)

// Remote is the system of record. Every write carries the fully-resolved new
// value, never a diff.
type Remote interface {
	FetchOrders(ctx context.Context) ([]model.Order, error)
	ReplaceTags(ctx context.Context, id int64, tags label.Labels) error
	ReplaceNote(ctx context.Context, id int64, note string) error
	SetPriority(ctx context.Context, id int64, on bool) error
	ReplaceStatus(ctx context.Context, id int64, tags label.Labels) error
	ReplaceDates(ctx context.Context, id int64, dates DateUpdate) error
	BulkReplaceStatus(ctx context.Context, updates []TagUpdate) error
	MarkDeleted(ctx context.Context, id int64, tags label.Labels) error
	CreateShipment(ctx context.Context, id int64, req model.ShipmentRequest) (model.Shipment, error)
}

type TagUpdate struct {
	OrderID int64        `json:"order_id"`
	Tags    label.Labels `json:"tags"`
}

// DateUpdate always carries both overrides plus the tags that encode them.
type DateUpdate struct {
	Start *time.Time   `json:"custom_start_date"`
	Due   *time.Time   `json:"custom_due_date"`
	Tags  label.Labels `json:"tags"`
}
