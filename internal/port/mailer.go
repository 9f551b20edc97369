package port

import "context"

// MailSender defines the interface to the outgoing mail collaborator
type MailSender interface {
	// Send delivers one message to one recipient
	Send(ctx context.Context, to, subject, body string) error
}
