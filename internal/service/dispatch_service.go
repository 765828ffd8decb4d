package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"time"

	"anoa.com/notifhub/internal/model"
	"anoa.com/notifhub/internal/repository"
	"anoa.com/notifhub/pkg/mailer"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

// Webhook event types posted back by the email provider.
const (
	WebhookDelivered  = "delivered"
	WebhookOpened     = "opened"
	WebhookBounced    = "bounced"
	WebhookComplained = "complained"
	WebhookFailed     = "failed"
)

var emailBodyTmpl = template.Must(template.New("email").Parse(`<html>
<body style="font-family: sans-serif; color: #222;">
  <p>Hi {{.Recipient}},</p>
  <p>{{.Message}}</p>
  <p style="color:#888;font-size:12px;">You are receiving this because of your notification settings.</p>
</body>
</html>`))

type DispatchService interface {
	// Dispatch sends on every selected channel that has a dispatcher. Send
	// failures are recorded on the notification, never raised to the event
	// producer; the returned error is for sweep logging only.
	Dispatch(ctx context.Context, n *model.Notification) error
	SendEmail(ctx context.Context, n *model.Notification) error
	// SendBatchEmail sends one summary email and records the provider message
	// id on every member that selected the email channel.
	SendBatchEmail(ctx context.Context, summary *model.Notification, members []model.Notification) error
	// PublishInApp fans the notification out to live websocket clients.
	PublishInApp(ctx context.Context, n *model.Notification)
	// HandleEmailWebhook merges a provider event into every notification
	// carrying that message id. Returns how many were updated.
	HandleEmailWebhook(ctx context.Context, messageID, event string) (int, error)
}

type dispatchService struct {
	notifRepo   repository.NotificationRepository
	userRepo    repository.UserRepository
	sender      mailer.EmailSender
	redisClient *redis.Client
	analytics   AnalyticsRecorder
}

func NewDispatchService(
	notifRepo repository.NotificationRepository,
	userRepo repository.UserRepository,
	sender mailer.EmailSender,
	redisClient *redis.Client,
	analytics AnalyticsRecorder,
) DispatchService {
	return &dispatchService{
		notifRepo:   notifRepo,
		userRepo:    userRepo,
		sender:      sender,
		redisClient: redisClient,
		analytics:   analytics,
	}
}

func (s *dispatchService) Dispatch(ctx context.Context, n *model.Notification) error {
	var firstErr error
	for _, ch := range n.DeliveryChannels {
		switch ch {
		case model.ChannelInApp:
			// delivered at creation time
		case model.ChannelEmail:
			if err := s.SendEmail(ctx, n); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			// whatsapp/sms/push: status-only until a provider is wired in
		}
	}
	return firstErr
}

func (s *dispatchService) SendEmail(ctx context.Context, n *model.Notification) error {
	recipient, err := s.userRepo.FindByID(ctx, n.UserID)
	if err != nil {
		s.recordEmailFailure(ctx, n.ID, fmt.Sprintf("recipient lookup: %v", err))
		return err
	}

	msg := mailer.Message{
		To:      recipient.Email,
		Subject: n.Title,
		HTML:    renderEmailBody(recipient.DisplayName(), n.Message),
		Text:    n.Message,
		Tag:     n.Type,
	}

	messageID, err := s.sender.Send(ctx, msg)
	if err != nil {
		s.recordEmailFailure(ctx, n.ID, err.Error())
		s.analytics.Record(ctx, AnalyticsEvent{
			Event: "failed", NotificationID: n.ID, UserID: n.UserID,
			Type: n.Type, Channel: model.ChannelEmail,
		})
		return err
	}

	now := time.Now()
	s.patchEmailStatus(ctx, n.ID, func(st *model.ChannelStatus) {
		st.MessageID = messageID
		st.SentAt = &now
		st.Error = ""
		st.ErrorAt = nil
	})
	s.analytics.Record(ctx, AnalyticsEvent{
		Event: "sent", NotificationID: n.ID, UserID: n.UserID,
		Type: n.Type, Channel: model.ChannelEmail,
	})
	return nil
}

func (s *dispatchService) SendBatchEmail(ctx context.Context, summary *model.Notification, members []model.Notification) error {
	recipient, err := s.userRepo.FindByID(ctx, summary.UserID)
	if err != nil {
		return err
	}

	var emailMembers []uuid.UUID
	for _, m := range members {
		if m.HasChannel(model.ChannelEmail) {
			emailMembers = append(emailMembers, m.ID)
		}
	}
	if len(emailMembers) == 0 {
		return nil
	}

	msg := mailer.Message{
		To:      recipient.Email,
		Subject: summary.Title,
		HTML:    renderEmailBody(recipient.DisplayName(), summary.Message),
		Text:    summary.Message,
		Tag:     summary.Type,
	}

	messageID, err := s.sender.Send(ctx, msg)
	if err != nil {
		for _, id := range emailMembers {
			s.recordEmailFailure(ctx, id, err.Error())
		}
		return err
	}

	now := time.Now()
	for _, id := range emailMembers {
		s.patchEmailStatus(ctx, id, func(st *model.ChannelStatus) {
			st.MessageID = messageID
			st.SentAt = &now
			st.Error = ""
			st.ErrorAt = nil
		})
	}
	s.analytics.Record(ctx, AnalyticsEvent{
		Event: "sent", NotificationID: summary.ID, UserID: summary.UserID,
		Type: summary.Type, Channel: model.ChannelEmail,
	})
	return nil
}

func (s *dispatchService) PublishInApp(ctx context.Context, n *model.Notification) {
	if s.redisClient == nil || !n.HasChannel(model.ChannelInApp) {
		return
	}
	channel := fmt.Sprintf("user_notifications:%s", n.UserID.String())
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	s.redisClient.Publish(ctx, channel, payload)
}

func (s *dispatchService) HandleEmailWebhook(ctx context.Context, messageID, event string) (int, error) {
	notifs, err := s.notifRepo.FindByEmailMessageID(ctx, messageID)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	merged := 0
	for _, n := range notifs {
		err := s.patchEmailStatus(ctx, n.ID, func(st *model.ChannelStatus) {
			// Each event only sets its own fields. delivered is monotonic.
			switch event {
			case WebhookDelivered:
				st.Delivered = true
				if st.DeliveredAt == nil {
					st.DeliveredAt = &now
				}
			case WebhookOpened:
				st.Opened = true
			case WebhookBounced, WebhookComplained, WebhookFailed:
				if !st.Delivered {
					st.Error = "email " + event
					st.ErrorAt = &now
				}
			}
		})
		if err != nil {
			log.Printf("webhook merge failed for notification %s: %v", n.ID, err)
			continue
		}
		merged++
		s.analytics.Record(ctx, AnalyticsEvent{
			Event: event, NotificationID: n.ID, UserID: n.UserID,
			Type: n.Type, Channel: model.ChannelEmail, At: now,
		})
	}
	return merged, nil
}

// patchEmailStatus re-reads current state immediately before the conditional
// patch so concurrent webhook and retry writers never clobber each other's
// fields.
func (s *dispatchService) patchEmailStatus(ctx context.Context, id uuid.UUID, mutate func(*model.ChannelStatus)) error {
	n, err := s.notifRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	status := n.DeliveryStatus.Data()
	if status == nil {
		status = model.DeliveryStatusMap{}
	}
	st := status[model.ChannelEmail]
	if st == nil {
		st = &model.ChannelStatus{}
		status[model.ChannelEmail] = st
	}
	mutate(st)

	return s.notifRepo.Patch(ctx, id, map[string]any{
		"delivery_status": datatypes.NewJSONType(status),
	})
}

func (s *dispatchService) recordEmailFailure(ctx context.Context, id uuid.UUID, errMsg string) {
	now := time.Now()
	if err := s.patchEmailStatus(ctx, id, func(st *model.ChannelStatus) {
		st.Error = errMsg
		st.ErrorAt = &now
		st.RetryCount++
	}); err != nil {
		log.Printf("failed to record email failure for %s: %v", id, err)
	}
}

func renderEmailBody(recipient, message string) string {
	var buf bytes.Buffer
	err := emailBodyTmpl.Execute(&buf, map[string]string{
		"Recipient": recipient,
		"Message":   message,
	})
	if err != nil {
		return message
	}
	return buf.String()
}
