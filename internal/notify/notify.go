// Package notify requests activation mails. Rendering and delivery happen in
// the mail worker that consumes the requests.
package notify

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Skotchmaster/userauth/internal/events"
)

type ActivationSender interface {
	SendActivation(ctx context.Context, to, name, token string) error
}

type MailRequest struct {
	Type          string    `json:"type"`
	To            string    `json:"to"`
	Name          string    `json:"name"`
	ActivationURL string    `json:"activationUrl"`
	RequestedAt   time.Time `json:"requested_at"`
}

// ActivationURL builds the link the user follows to activate the account.
func ActivationURL(backendURL, token string) string {
	return strings.TrimRight(backendURL, "/") + "/users/activate/" + url.PathEscape(token)
}

// KafkaSender publishes a mail request per activation.
type KafkaSender struct {
	Publisher  events.Publisher
	BackendURL string
}

func (s *KafkaSender) SendActivation(ctx context.Context, to, name, token string) error {
	req := MailRequest{
		Type:          events.TypeActivationRequested,
		To:            to,
		Name:          name,
		ActivationURL: ActivationURL(s.BackendURL, token),
		RequestedAt:   time.Now().UTC(),
	}
	return s.Publisher.PublishEvent(ctx, events.TopicMailRequests, to, req)
}

// LogSender only logs the link. Meant for local runs without a mail worker.
type LogSender struct {
	Logger     *slog.Logger
	BackendURL string
}

func (s *LogSender) SendActivation(_ context.Context, to, name, token string) error {
	s.Logger.Info("activation_link", "to", to, "name", name, "url", ActivationURL(s.BackendURL, token))
	return nil
}
