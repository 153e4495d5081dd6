package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEmail struct {
	to      string
	subject string
	body    string
	err     error
}

func (f *fakeEmail) Send(to string, subject string, body string) error {
	f.to = to
	f.subject = subject
	f.body = body
	return f.err
}

type fakeSMS struct {
	to   string
	body string
	err  error
}

func (f *fakeSMS) Send(_ context.Context, to string, body string) error {
	f.to = to
	f.body = body
	return f.err
}

func (f *fakeSMS) ProviderID() string { return "sms-fake" }

func TestSendRoutesEmail(t *testing.T) {
	fe := &fakeEmail{}
	d := &Dispatcher{email: fe, sms: &fakeSMS{}}

	providerID, err := d.send(context.Background(), reminderPayload{
		AppointmentID: "appt-1",
		Channel:       "email",
		Recipient:     "client@example.com",
		RemindAt:      "2026-09-01T10:00:00Z",
		TemplateData:  map[string]any{"salon_name": "Shear Genius"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if providerID != "smtp" {
		t.Fatalf("provider = %q, want smtp", providerID)
	}
	if fe.to != "client@example.com" {
		t.Fatalf("recipient = %q", fe.to)
	}
	if !strings.Contains(fe.body, "Shear Genius") {
		t.Fatalf("body missing salon name: %q", fe.body)
	}
	if !strings.Contains(fe.body, "appt-1") {
		t.Fatalf("body missing appointment id: %q", fe.body)
	}
}

func TestSendRoutesSMS(t *testing.T) {
	fs := &fakeSMS{}
	d := &Dispatcher{email: &fakeEmail{}, sms: fs}

	providerID, err := d.send(context.Background(), reminderPayload{
		AppointmentID: "appt-2",
		Channel:       "SMS",
		Recipient:     "+15550100",
		RemindAt:      "2026-09-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if providerID != "sms-fake" {
		t.Fatalf("provider = %q, want sms-fake", providerID)
	}
	if fs.to != "+15550100" {
		t.Fatalf("recipient = %q", fs.to)
	}
}

func TestSendUnsupportedChannel(t *testing.T) {
	d := &Dispatcher{email: &fakeEmail{}, sms: &fakeSMS{}}

	if _, err := d.send(context.Background(), reminderPayload{Channel: "pigeon"}); err == nil {
		t.Fatal("expected error for unsupported channel")
	}
}

func TestSendPropagatesProviderError(t *testing.T) {
	fe := &fakeEmail{err: errors.New("smtp down")}
	d := &Dispatcher{email: fe, sms: &fakeSMS{}}

	if _, err := d.send(context.Background(), reminderPayload{Channel: "email", Recipient: "a@b.c"}); err == nil {
		t.Fatal("expected error when provider fails")
	}
}
