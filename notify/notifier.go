package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/warp/provenance-ledger/provenance"
)

// =============================================================================
// NOTIFIERS
// =============================================================================

// NotifierFunc adapts a function to provenance.Notifier.
type NotifierFunc func(ctx context.Context, e provenance.Event) error

func (f NotifierFunc) Notify(ctx context.Context, e provenance.Event) error { return f(ctx, e) }

// LogNotifier writes one line per event.
type LogNotifier struct {
	Logger *log.Logger // nil uses the standard logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, e provenance.Event) error {
	line := fmt.Sprintf("[Event] #%d %s actor=%s batch=%d product=%d %s",
		e.Seq, e.Type, e.Actor, e.BatchID, e.ProductID, formatPayload(e.Payload))
	if n.Logger != nil {
		n.Logger.Println(line)
	} else {
		log.Println(line)
	}
	return nil
}

// Multi fans an event out to every notifier. All are attempted; errors are
// joined.
type Multi []provenance.Notifier

func (m Multi) Notify(ctx context.Context, e provenance.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// CUSTOMER MAIL
// =============================================================================

// Message is an outgoing customer notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a composed Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// CustomerMailer tells the customer on file that their product has been
// registered, and again when it is delivered. The delivery mail reads the
// address from the Store, so it reaches customers whose product was added
// before the dispatcher started. Products without a customer email are
// skipped.
type CustomerMailer struct {
	Sender Sender
	Store  provenance.Store
}

func NewCustomerMailer(sender Sender, store provenance.Store) *CustomerMailer {
	return &CustomerMailer{Sender: sender, Store: store}
}

func (m *CustomerMailer) Notify(ctx context.Context, e provenance.Event) error {
	switch e.Type {
	case provenance.EventProductAdded:
		email := e.Payload["customerEmail"]
		if email == "" {
			return nil
		}
		name := e.Payload["customerName"]
		if name == "" {
			name = "customer"
		}
		return m.Sender.Send(ctx, Message{
			To:      email,
			Subject: fmt.Sprintf("Your product #%d has been registered", e.ProductID),
			Body: fmt.Sprintf("Hello %s,\n\nProduct #%d from batch #%d is now on the ledger. "+
				"You can follow its journey using the product id.\n", name, e.ProductID, e.BatchID),
		})

	case provenance.EventProductDelivered:
		if e.Payload["deliveryStatus"] != string(provenance.StatusDelivered) {
			return nil
		}
		p, err := m.Store.GetProduct(ctx, e.ProductID)
		if err != nil {
			// Gone after a ledger reset.
			if provenance.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to look up customer of product %d: %w", e.ProductID, err)
		}
		if p.CustomerDetails.Email == "" {
			return nil
		}
		return m.Sender.Send(ctx, Message{
			To:      p.CustomerDetails.Email,
			Subject: fmt.Sprintf("Your product #%d has been delivered", e.ProductID),
			Body:    fmt.Sprintf("Product #%d was marked delivered by %s.\n", e.ProductID, e.Actor),
		})
	}
	return nil
}

// LogSender prints messages instead of sending them.
func LogSender() Sender {
	return SenderFunc(func(_ context.Context, msg Message) error {
		log.Printf("[Mail] to=%s subject=%q", msg.To, msg.Subject)
		return nil
	})
}

func formatPayload(p map[string]string) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if p[k] == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, p[k]))
	}
	return strings.Join(parts, " ")
}
