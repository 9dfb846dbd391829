package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderdesk/internal/label"
)

type Order struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Customer        *Customer       `json:"customer,omitempty"`
	Total           decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency,omitempty"`
	LineItems       []LineItem      `json:"line_items"`
	Note            string          `json:"note"`
	Tags            label.Labels    `json:"tags"`
	CreatedAt       time.Time       `json:"created_at"`
	CustomStartDate *time.Time      `json:"custom_start_date,omitempty"`
	CustomDueDate   *time.Time      `json:"custom_due_date,omitempty"`
}

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
}

// FullName is "first last" with empty parts dropped.
func (c *Customer) FullName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type LineItem struct {
	Title        string     `json:"title"`
	VariantTitle string     `json:"variant_title,omitempty"`
	Quantity     int        `json:"quantity"`
	Properties   []Property `json:"properties,omitempty"`
}

type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Key identifies the item in item-subset filters: "title" or "title (variant)".
func (li LineItem) Key() string {
	if v := strings.TrimSpace(li.VariantTitle); v != "" {
		return fmt.Sprintf("%s (%s)", li.Title, v)
	}
	return li.Title
}

// Facts decodes the order's tags.
func (o Order) Facts() label.Facts {
	return label.Decode(o.Tags)
}

// Clone returns a deep copy; cache snapshots must not share slices or pointers
// with the live record.
func (o Order) Clone() Order {
	c := o
	if o.Customer != nil {
		cust := *o.Customer
		c.Customer = &cust
	}
	if o.LineItems != nil {
		c.LineItems = make([]LineItem, len(o.LineItems))
		for i, li := range o.LineItems {
			li.Properties = slices.Clone(li.Properties)
			c.LineItems[i] = li
		}
	}
	c.Tags = o.Tags.Clone()
	c.CustomStartDate = cloneTime(o.CustomStartDate)
	c.CustomDueDate = cloneTime(o.CustomDueDate)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
