// Package mailer delivers out-of-band messages (verification codes,
// password mails) to a user's registered contact address.
package mailer

import (
	"context"
	"log"
)

// Dispatcher sends one message to one address. Implementations must
// report failure synchronously: the caller decides whether the
// surrounding operation succeeded based on the returned error.
type Dispatcher interface {
	Deliver(ctx context.Context, to, subject, body string) error
}

// Log is the development Dispatcher: it writes the message to the
// process log instead of sending it.
type Log struct{}

func (Log) Deliver(ctx context.Context, to, subject, body string) error {
	log.Printf("mail (dev) | to=%s | subject=%q | body=%q", to, subject, body)
	return nil
}
