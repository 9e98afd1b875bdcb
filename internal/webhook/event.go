package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed reports a verified notification that cannot be interpreted.
var ErrMalformed = errors.New("malformed notification")

// Outcome is the payment result a notification reports.
type Outcome string

// Outcome values. OutcomeNone marks events that carry no payment result.
// OutcomeAttemptFailed is one declined payment attempt; the processor keeps
// the order open for retries, so it never settles a transaction.
const (
	OutcomeNone          Outcome = ""
	OutcomeSuccess       Outcome = "success"
	OutcomeFailed        Outcome = "failed"
	OutcomeAttemptFailed Outcome = "attempt_failed"
)

// Processor event names.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// Event is a parsed processor notification.
type Event struct {
	Name       string
	OrderRef   string
	PaymentRef string
	Outcome    Outcome
	PlanID     string
}

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity entity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity entity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type entity struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Status  string          `json:"status"`
	Notes   json.RawMessage `json:"notes"`
}

// Parse decodes a processor notification body.
func Parse(raw []byte) (Event, error) {
	var env envelope
	if errUnmarshal := json.Unmarshal(raw, &env); errUnmarshal != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, errUnmarshal)
	}
	name := strings.TrimSpace(env.Event)
	if name == "" {
		return Event{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}

	evt := Event{Name: name, Outcome: outcomeFor(name)}
	var notes map[string]string
	if env.Payload.Payment != nil {
		payment := env.Payload.Payment.Entity
		evt.PaymentRef = strings.TrimSpace(payment.ID)
		evt.OrderRef = strings.TrimSpace(payment.OrderID)
		notes = parseNotes(payment.Notes)
	}
	if env.Payload.Order != nil {
		order := env.Payload.Order.Entity
		if evt.OrderRef == "" {
			evt.OrderRef = strings.TrimSpace(order.ID)
		}
		if len(notes) == 0 {
			notes = parseNotes(order.Notes)
		}
	}
	evt.PlanID = firstNonEmpty(notes["planId"], notes["planType"])

	if evt.Outcome == OutcomeNone {
		return evt, nil
	}
	if evt.OrderRef == "" {
		return Event{}, fmt.Errorf("%w: missing order reference", ErrMalformed)
	}
	if evt.Outcome == OutcomeSuccess && evt.PaymentRef == "" {
		return Event{}, fmt.Errorf("%w: missing payment reference", ErrMalformed)
	}
	return evt, nil
}

func outcomeFor(event string) Outcome {
	switch event {
	case EventPaymentCaptured, EventOrderPaid:
		return OutcomeSuccess
	case EventPaymentFailed:
		return OutcomeAttemptFailed
	default:
		return OutcomeNone
	}
}

// parseNotes accepts an object of scalars; the processor sends [] when empty.
func parseNotes(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var values map[string]any
	if errUnmarshal := json.Unmarshal(raw, &values); errUnmarshal != nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		switch v := value.(type) {
		case string:
			out[key] = strings.TrimSpace(v)
		case float64, bool:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
