package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/mrz1836/postmark"
)

var ErrSendFailed = errors.New("failed to send email")

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tag     string
}

// EmailSender is the channel provider boundary. Send returns the provider
// message id used later to correlate webhook events back to a notification.
type EmailSender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type postmarkSender struct {
	client *postmark.Client
	from   string
}

// NewPostmarkSender wires the Postmark transactional API. Open tracking is on
// so the webhook can report opens for email analytics.
func NewPostmarkSender(serverToken, accountToken, from string) (EmailSender, error) {
	if serverToken == "" || from == "" {
		return nil, errors.New("mailer: POSTMARK_SERVER_TOKEN and MAIL_FROM are required")
	}
	return &postmarkSender{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
	}, nil
}

func (s *postmarkSender) Send(ctx context.Context, msg Message) (string, error) {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		TrackOpens: true,
	})
	if err != nil {
		return "", errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return "", errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return resp.MessageID, nil
}

type devSender struct{}

// NewDevSender logs instead of sending. Used when no provider token is
// configured so local development still exercises the full dispatch path.
func NewDevSender() EmailSender {
	return devSender{}
}

func (devSender) Send(_ context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	log.Printf("📧 [dev-mailer] to=%s subject=%q message_id=%s", msg.To, msg.Subject, id)
	return id, nil
}

// FromEnv picks the Postmark sender when tokens are present, otherwise the
// dev sender.
func FromEnv() EmailSender {
	token := os.Getenv("POSTMARK_SERVER_TOKEN")
	if token == "" {
		log.Println("⚠️ mailer: POSTMARK_SERVER_TOKEN not set, using dev sender")
		return NewDevSender()
	}
	sender, err := NewPostmarkSender(token, os.Getenv("POSTMARK_ACCOUNT_TOKEN"), os.Getenv("MAIL_FROM"))
	if err != nil {
		log.Printf("⚠️ mailer: %v, using dev sender", err)
		return NewDevSender()
	}
	return sender
}
