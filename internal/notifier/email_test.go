package notifier

import (
	"context"
	"strings"
	"testing"

	"job-compass/internal/deadline"
	"job-compass/internal/scheduler"
)

type stubSender struct {
	sent []EmailMessage
	err  error
}

func (s *stubSender) Send(ctx context.Context, msg EmailMessage) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestEmailNotifierBuildsDigestBody(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	n := NewEmailNotifier(EmailConfig{From: "me@example.com", To: []string{"you@example.com"}}, sender)

	digest := scheduler.Digest{
		Urgent: []deadline.Card{
			{JobID: "job-a", DaysRemaining: 1, Urgency: deadline.UrgencyRed},
			{JobID: "job-b", DaysRemaining: -2, Urgency: deadline.UrgencyRed},
		},
		Overdue: []deadline.Card{
			{JobID: "job-b", DaysRemaining: -2, Urgency: deadline.UrgencyRed},
		},
		FollowUps: []scheduler.FollowUp{
			{JobID: "job-c", Title: "SRE", Company: "Acme", Stage: "Applied", IdleDays: 10},
		},
	}

	if err := n.Notify(context.Background(), digest); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}

	msg := sender.sent[0]
	if msg.Subject != "Job application reminders" {
		t.Errorf("subject = %q", msg.Subject)
	}
	body := msg.Body
	if !strings.Contains(body, "job-b (2 days past)") {
		t.Errorf("body missing overdue line: %q", body)
	}
	if !strings.Contains(body, "job-a (1 days remaining)") {
		t.Errorf("body missing urgent line: %q", body)
	}
	// Overdue cards must not repeat in the urgent section.
	if strings.Count(body, "job-b") != 1 {
		t.Errorf("job-b listed more than once: %q", body)
	}
	if !strings.Contains(body, "SRE at Acme, Applied for 10 days") {
		t.Errorf("body missing follow-up line: %q", body)
	}
}

func TestEmailNotifierSkipsEmptyDigest(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	n := NewEmailNotifier(EmailConfig{}, sender)

	if err := n.Notify(context.Background(), scheduler.Digest{}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(sender.sent))
	}
}

func TestBuildEmailDataHeaders(t *testing.T) {
	t.Parallel()

	data := buildEmailData(EmailMessage{
		From:    "me@example.com",
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "reminders",
		Body:    "hello",
	})
	if !strings.Contains(data, "To: a@example.com,b@example.com\r\n") {
		t.Errorf("data = %q", data)
	}
	if !strings.HasSuffix(data, "\r\n\r\nhello") {
		t.Errorf("body not separated from headers: %q", data)
	}
}
