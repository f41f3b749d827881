package tracker

import (
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/itsneelabh/storefront/docstore"
	"github.com/itsneelabh/storefront/money"
	"github.com/itsneelabh/storefront/order"
)

// StepState is how one timeline step renders.
type StepState string

const (
	StepPending StepState = "pending"
	// StepActive is the current status, not yet timestamped by the point of sale.
	StepActive StepState = "active"
	StepDone   StepState = "done"
)

// DisplayLayout formats step and refresh times.
const DisplayLayout = "02/01/2006 15:04:05"

// Step is one entry of the status timeline.
type Step struct {
	Status order.Status `json:"status"`
	Label  string       `json:"label"`
	State  StepState    `json:"state"`
	At     *time.Time   `json:"at,omitempty"`
}

// When renders the step time, or "" when the step has none.
func (s Step) When(loc *time.Location) string {
	if s.At == nil {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return s.At.In(loc).Format(DisplayLayout)
}

// View is the tracker's rendering model for one order document.
type View struct {
	OrderID     string       `json:"orderId"`
	Exists      bool         `json:"exists"`
	Status      order.Status `json:"status"`
	StatusLabel string       `json:"statusLabel"`
	Total       float64      `json:"total"`
	DeliveryFee float64      `json:"deliveryFee"`
	TotalLabel  string       `json:"totalLabel"`
	Items       []order.Item `json:"items"`
	Steps       []Step       `json:"steps"`
	RefreshedAt time.Time    `json:"refreshedAt"`
}

// Step returns the timeline step for status.
func (v View) Step(status order.Status) (Step, bool) {
	for _, s := range v.Steps {
		if s.Status == status {
			return s, true
		}
	}
	return Step{}, false
}

// Derive builds the view of an order document. A step is done once its
// timestamp field is set, active when it is the current status without a
// timestamp, and pending otherwise. The first step falls back to
// createdAtClient until the store stamps createdAt. The canceled step only
// appears for canceled orders.
func Derive(id string, doc docstore.Document, now time.Time) View {
	v := View{OrderID: id, Exists: doc.Exists, RefreshedAt: now}
	if !doc.Exists {
		v.StatusLabel = order.Status("").Label()
		return v
	}
	data := doc.Data

	v.Status = order.Status(cast.ToString(data["status"]))
	v.StatusLabel = v.Status.Label()

	if t, ok := docstore.Lookup(data, "totals.total"); ok {
		v.Total = cast.ToFloat64(t)
	}
	if f, ok := docstore.Lookup(data, "delivery.fee"); ok {
		v.DeliveryFee = cast.ToFloat64(f)
	}
	v.TotalLabel = money.FormatBRL(v.Total)
	if v.DeliveryFee != 0 {
		v.TotalLabel = fmt.Sprintf("%s (c/ entrega)", v.TotalLabel)
	}

	if o, err := order.FromDocument(data); err == nil {
		v.Items = o.Items
	}

	statuses := append([]order.Status(nil), order.Flow...)
	_, hasCanceledAt := data[order.StatusCanceled.TimestampField()]
	if v.Status == order.StatusCanceled || hasCanceledAt {
		statuses = append(statuses, order.StatusCanceled)
	}
	for _, s := range statuses {
		v.Steps = append(v.Steps, deriveStep(s, v.Status, data))
	}
	return v
}

func deriveStep(s, current order.Status, data map[string]interface{}) Step {
	step := Step{Status: s, Label: s.Label(), State: StepPending}
	at, ok := order.ParseTime(data[s.TimestampField()])
	if !ok && s == order.StatusNew {
		at, ok = order.ParseTime(data["createdAtClient"])
	}
	switch {
	case ok:
		step.State = StepDone
		step.At = &at
	case s == current:
		step.State = StepActive
	}
	return step
}
