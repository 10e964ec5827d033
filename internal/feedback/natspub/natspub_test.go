package natspub_test

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/MrWong99/renoquote/internal/feedback"
	"github.com/MrWong99/renoquote/internal/feedback/natspub"
)

func startNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
	})
	return ns, nc
}

func TestPublisher_RoundTrip(t *testing.T) {
	_, nc := startNATS(t)

	got := make(chan natspub.Event, 1)
	sub, err := natspub.Subscribe(nc, "", func(_ context.Context, ev natspub.Event) {
		got <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	p := natspub.New(nc, "")
	if p.Subject() != natspub.DefaultSubject {
		t.Errorf("Subject = %q, want %q", p.Subject(), natspub.DefaultSubject)
	}
	entry := feedback.Entry{ID: "e1", QuoteID: "q1", Verdict: feedback.VerdictOverpriced, Region: "Bretagne"}
	if err := p.Publish(context.Background(), entry); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Type != natspub.EventType {
			t.Errorf("Type = %q, want %q", ev.Type, natspub.EventType)
		}
		if ev.Entry.ID != "e1" || ev.Entry.QuoteID != "q1" || ev.Entry.Verdict != feedback.VerdictOverpriced {
			t.Errorf("Entry = %+v", ev.Entry)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	// A borrowed connection stays open after Close.
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if nc.IsClosed() {
		t.Error("Close closed a connection it does not own")
	}
}

func TestConnect(t *testing.T) {
	ns, _ := startNATS(t)

	p, err := natspub.Connect(ns.ClientURL(), "custom.subject")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if p.Subject() != "custom.subject" {
		t.Errorf("Subject = %q, want custom.subject", p.Subject())
	}
	if err := p.Publish(context.Background(), feedback.Entry{ID: "e2"}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	if _, err := natspub.Connect("nats://127.0.0.1:1", ""); err == nil {
		t.Fatal("Connect to a closed port succeeded")
	}
}
