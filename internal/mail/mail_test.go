package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	vars := map[string]string{
		"employeeName": "Aiko",
		"doctorName":   "Tanaka sensei",
	}
	cases := []struct {
		in   string
		want string
	}{
		{"Dear {{employeeName}}", "Dear Aiko"},
		{"{{doctorName}} / {{doctorName}}", "Tanaka sensei / Tanaka sensei"},
		{"Room {{roomNumber}} with {{doctorName}}", "Room {{roomNumber}} with Tanaka sensei"},
		{"{{ employeeName }}", "{{ employeeName }}"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Render(tc.in, vars); got != tc.want {
			t.Fatalf("Render(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRender_DoesNotResubstituteValues(t *testing.T) {
	got := Render("{{a}}", map[string]string{"a": "{{b}}", "b": "x"})
	if got != "{{b}}" {
		t.Fatalf("Render = %q, want {{b}}", got)
	}
}

func TestSMTPSender_ComposesMessage(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Addr: "mail.example.com:587", Username: "u", Password: "p", From: "clinic@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPSender error: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err = s.Send(context.Background(), Message{To: "aiko@example.com", Subject: "Reminder\r\nBcc: x", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if gotAddr != "mail.example.com:587" || gotFrom != "clinic@example.com" {
		t.Fatalf("addr=%q from=%q", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "aiko@example.com" {
		t.Fatalf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Reminder  Bcc: x\r\n") {
		t.Fatalf("subject header not sanitized: %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2") {
		t.Fatalf("body = %q", msg)
	}
}

func TestSMTPSender_WrapsTransportError(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Addr: "mail.example.com:25", From: "clinic@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPSender error: %v", err)
	}
	boom := errors.New("421 try later")
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error { return boom }

	if err := s.Send(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped transport error", err)
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{From: "x@example.com"}); err == nil {
		t.Fatalf("expected error for missing addr")
	}
	if _, err := NewSMTPSender(SMTPConfig{Addr: "mail.example.com:25"}); err == nil {
		t.Fatalf("expected error for missing from")
	}
	if _, err := NewSMTPSender(SMTPConfig{Addr: "no-port", From: "x@example.com"}); err == nil {
		t.Fatalf("expected error for addr without port")
	}
}

func TestRecorder_FailFor(t *testing.T) {
	boom := errors.New("mailbox full")
	r := &Recorder{FailFor: map[string]error{"bad@example.com": boom}}

	if err := r.Send(context.Background(), Message{To: "bad@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if err := r.Send(context.Background(), Message{To: "ok@example.com"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if got := r.Sent(); len(got) != 1 || got[0].To != "ok@example.com" {
		t.Fatalf("sent = %v", got)
	}
}
