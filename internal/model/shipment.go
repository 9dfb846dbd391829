package model

import "time"

// Shipment is what the courier returns when a consignment is created.
type Shipment struct {
	OrderID   int64     `json:"order_id"`
	Barcode   string    `json:"barcode"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ShipmentRequest carries the location identifiers the courier needs.
type ShipmentRequest struct {
	CityID         string `json:"city_id"`
	NeighborhoodID string `json:"neighborhood_id"`
	SubzoneID      string `json:"subzone_id,omitempty"`
	Pieces         int    `json:"pieces"`
}
