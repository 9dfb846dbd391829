// Package workflow holds the label-mutation rules behind every operator
// action. All functions are pure: they take the current record and return the
// next one without touching the cache or the network.
package workflow

import (
	"strings"
	"time"

	"orderdesk/internal/duedate"
	"orderdesk/internal/label"
	"orderdesk/internal/model"
	"orderdesk/internal/status"
)

type Transition struct {
	Order   model.Order
	From    status.Status
	To      status.Status
	Changed bool
}

// ToStatus moves o to the requested status. Any status may follow any other.
// Reaching fulfilled stamps today's fulfillment date and drops priority.
func ToStatus(o model.Order, to status.Status, now time.Time) Transition {
	if to == "" {
		to = status.Pending
	}
	from := o.Facts().Status
	if from == to {
		return Transition{Order: o, From: from, To: to}
	}

	changes := []label.Change{label.SetStatus(to)}
	if to == status.Fulfilled {
		changes = append(changes,
			label.SetFact(label.FulfillmentDate, duedate.FormatDate(now)),
			label.SetFlag(label.Priority, false),
		)
	}

	next := o.Clone()
	next.Tags = label.Encode(o.Tags, changes...)
	return Transition{Order: next, From: from, To: to, Changed: true}
}

// SetPriority toggles the priority flag. Fulfilled orders never gain it.
func SetPriority(o model.Order, on bool) (model.Order, bool) {
	facts := o.Facts()
	if facts.Has(label.Priority) == on {
		return o, false
	}
	if on && facts.Status == status.Fulfilled {
		return o, false
	}
	return SetFlag(o, label.Priority, on), true
}

func SetFlag(o model.Order, flag label.Flag, on bool) model.Order {
	next := o.Clone()
	next.Tags = label.Encode(o.Tags, label.SetFlag(flag, on))
	return next
}

// SetDueDate writes both the keyed fact and the timestamp override.
// A nil due clears them.
func SetDueDate(o model.Order, due *time.Time) model.Order {
	next := o.Clone()
	next.Tags = label.Encode(o.Tags, label.SetFact(label.CustomDueDate, dateValue(due)))
	next.CustomDueDate = civil(due)
	return next
}

func SetStartDate(o model.Order, start *time.Time) model.Order {
	next := o.Clone()
	next.Tags = label.Encode(o.Tags, label.SetFact(label.CustomStartDate, dateValue(start)))
	next.CustomStartDate = civil(start)
	return next
}

func MarkDeleted(o model.Order) model.Order {
	next := o.Clone()
	next.Tags = label.Encode(o.Tags, label.MarkDeleted(true))
	return next
}

// ReplaceTags installs an operator-edited tag list. The legacy transient
// marker never survives.
func ReplaceTags(o model.Order, tags label.Labels) model.Order {
	next := o.Clone()
	next.Tags = label.Encode(label.Of(tags...))
	return next
}

func ReplaceNote(o model.Order, note string) model.Order {
	next := o.Clone()
	next.Note = strings.TrimSpace(note)
	return next
}

// ApplyShipment records the courier consignment on the order.
func ApplyShipment(o model.Order, s model.Shipment) model.Order {
	changes := []label.Change{
		label.SetFact(label.ShippingBarcode, s.Barcode),
		label.SetFact(label.ShippingStatus, s.Status),
	}
	if !s.CreatedAt.IsZero() {
		changes = append(changes, label.SetFact(label.ShippingDate, duedate.FormatDate(s.CreatedAt)))
	}
	next := o.Clone()
	next.Tags = label.Encode(o.Tags, changes...)
	return next
}

func dateValue(t *time.Time) string {
	if t == nil {
		return ""
	}
	return duedate.FormatDate(*t)
}

func civil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := duedate.Midnight(*t)
	return &v
}
