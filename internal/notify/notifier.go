// Package notify hands transition events to the notification collaborator.
// Delivery (email, push) is out of scope; the implementations here only
// get the event off the engine's critical path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/booking-engine/internal/booking"
)

// LogNotifier writes every event to the structured log. Default in dev and
// the fallback when no webhook is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, ev booking.Event) {
	n.log.Info().
		Str("action", string(ev.Action)).
		Str("actor", string(ev.Actor)).
		Str("actor_name", ev.ActorName).
		Str("appointment_id", ev.Appointment.ID.String()).
		Str("status", string(ev.Appointment.Status)).
		Str("slot", ev.Appointment.Slot().Key()).
		Msg("appointment event")
}

// WebhookNotifier POSTs the event as JSON to the collaborator's endpoint.
// Failures are logged and dropped; the transition has already committed.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewWebhookNotifier(url string, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, ev booking.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Msg("encode notification event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.Error().Err(err).Msg("build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn().Err(err).Str("action", string(ev.Action)).Msg("notification webhook failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn().
			Int("status", resp.StatusCode).
			Str("action", string(ev.Action)).
			Msg("notification webhook rejected")
	}
}
