package ports

// Message is a rendered notification email
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Mailer sends notification messages. Implementations are fire-and-forget
// transports; delivery failures are the caller's to log and swallow.
type Mailer interface {
	Send(msg Message) error
}
