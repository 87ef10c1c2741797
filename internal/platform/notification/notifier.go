package notification

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Notifier is the typed surface the escalation and identity services use to
// send lifecycle notices. Send failures are logged and swallowed so a broken
// mail relay never blocks an escalation.
type Notifier struct {
	manager *NotificationManager
	logger  zerolog.Logger
}

// NewNotifier constructs a Notifier over a NotificationManager.
func NewNotifier(mgr *NotificationManager, logger zerolog.Logger) *Notifier {
	return &Notifier{manager: mgr, logger: logger.With().Str("component", "notifier").Logger()}
}

// EscalationCreated notifies the receiving physician or administrator that a
// patient escalation was created. Unassigned-patient escalations use a
// dedicated template, and urgent ones additionally page the recipient by SMS
// when a phone number is known.
func (n *Notifier) EscalationCreated(ctx context.Context, recipientEmail, recipientPhone, patientName, severity, reason string, unassigned bool) {
	data := map[string]string{
		"patient_name": patientName,
		"severity":     severity,
		"reason":       reason,
	}
	templateID := "escalation-created"
	if unassigned {
		templateID = "escalation-created-unassigned"
	}
	n.send(ctx, templateID, data, recipientEmail)

	if strings.EqualFold(severity, "urgent") && recipientPhone != "" {
		n.send(ctx, "escalation-urgent-sms", data, recipientPhone)
	}
}

// EscalationAcknowledged tells the patient their escalation is being reviewed.
func (n *Notifier) EscalationAcknowledged(ctx context.Context, patientEmail, patientName, physicianName string) {
	n.send(ctx, "escalation-acknowledged", map[string]string{
		"patient_name":   patientName,
		"physician_name": physicianName,
	}, patientEmail)
}

// EscalationResolved tells the patient their escalation was resolved.
func (n *Notifier) EscalationResolved(ctx context.Context, patientEmail, patientName string) {
	n.send(ctx, "escalation-resolved", map[string]string{
		"patient_name": patientName,
	}, patientEmail)
}

// PhysicianAssigned tells the patient which physician now covers them.
func (n *Notifier) PhysicianAssigned(ctx context.Context, patientEmail, patientName, physicianName string) {
	n.send(ctx, "physician-assigned", map[string]string{
		"patient_name":   patientName,
		"physician_name": physicianName,
	}, patientEmail)
}

func (n *Notifier) send(ctx context.Context, templateID string, data map[string]string, recipient string) {
	if recipient == "" {
		return
	}
	if _, err := n.manager.SendFromTemplate(ctx, templateID, data, recipient); err != nil {
		n.logger.Warn().Err(err).Str("template", templateID).Msg("notification send failed")
	}
}
