package alerts

import "context"

// Kind distinguishes alert batches from scheduled digests.
type Kind string

const (
	KindAlert  Kind = "alert"
	KindDigest Kind = "digest"
)

// Message is the text delivered to every channel.
type Message struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject"`
	Text    string `json:"text"`

	// Escalate asks channels that support it to page their configured people.
	Escalate bool `json:"escalate"`
}

// Notifier delivers messages to one external channel.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers one message with a single attempt. It returns
	// model.ErrNotAcknowledged (wrapped) when the channel answered without
	// confirming. Implementations must be safe for concurrent use.
	Send(ctx context.Context, msg Message) error
}

// Route binds a notifier to the message kinds it receives.
type Route struct {
	Notifier Notifier
	Alerts   bool
	Digests  bool
}

// Routes is the configured channel set, in configuration order.
type Routes []Route

// For returns the notifiers subscribed to kind.
func (r Routes) For(kind Kind) []Notifier {
	var out []Notifier
	for _, route := range r {
		switch {
		case kind == KindAlert && route.Alerts:
			out = append(out, route.Notifier)
		case kind == KindDigest && route.Digests:
			out = append(out, route.Notifier)
		}
	}
	return out
}
