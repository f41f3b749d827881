package order

// Status is the lifecycle state of a remote order document.
type Status string

const (
	StatusNew            Status = "new"
	StatusReceived       Status = "received"
	StatusPreparing      Status = "preparing"
	StatusReady          Status = "ready"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDone           Status = "done"
	StatusCanceled       Status = "canceled"
)

// Flow is the forward progression of an order. StatusCanceled sits outside
// it and is reachable from any non-terminal state.
var Flow = []Status{
	StatusNew,
	StatusReceived,
	StatusPreparing,
	StatusReady,
	StatusOutForDelivery,
	StatusDone,
}

var labels = map[Status]string{
	StatusNew:            "Enviado",
	StatusReceived:       "Recebido pelo PDV",
	StatusPreparing:      "Sendo preparado",
	StatusReady:          "Pronto",
	StatusOutForDelivery: "Saiu para entrega",
	StatusDone:           "Concluído",
	StatusCanceled:       "Cancelado",
}

var timestampFields = map[Status]string{
	StatusNew:            "createdAt",
	StatusReceived:       "receivedAt",
	StatusPreparing:      "preparingAt",
	StatusReady:          "readyAt",
	StatusOutForDelivery: "outForDeliveryAt",
	StatusDone:           "doneAt",
	StatusCanceled:       "canceledAt",
}

// Label returns the customer-facing name; unknown statuses render as-is.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	if s == "" {
		return "—"
	}
	return string(s)
}

// TimestampField is the document field the point of sale stamps when the
// order enters s.
func (s Status) TimestampField() string {
	return timestampFields[s]
}

// Known reports whether s is part of the closed enum.
func (s Status) Known() bool {
	_, ok := labels[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCanceled
}

// Rank is the position in Flow, or -1 for canceled and unknown statuses.
func (s Status) Rank() int {
	for i, f := range Flow {
		if f == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether an order may move from one status to another.
// Movement is forward only; canceled absorbs any non-terminal state.
func CanTransition(from, to Status) bool {
	if !from.Known() || !to.Known() || from.Terminal() || from == to {
		return false
	}
	if to == StatusCanceled {
		return true
	}
	return to.Rank() > from.Rank()
}
