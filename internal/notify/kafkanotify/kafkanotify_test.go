package kafkanotify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/warden/internal/notify"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestPublish_KeysByRecipient(t *testing.T) {
	t.Parallel()

	cw := &captureWriter{}
	p := &Publisher{w: cw}

	ev := &notify.Event{
		Kind:       notify.KindAlertOffer,
		Recipient:  "guard-7",
		IncidentID: "inc-1",
		AlertID:    "al-1",
		Priority:   3,
		At:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(cw.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(cw.msgs))
	}
	msg := cw.msgs[0]
	if string(msg.Key) != "guard-7" {
		t.Errorf("key = %q, want guard-7", msg.Key)
	}

	var got notify.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.Kind != notify.KindAlertOffer || got.AlertID != "al-1" {
		t.Errorf("payload = %+v", got)
	}
}

func TestPublish_OpsKeyForBroadcast(t *testing.T) {
	t.Parallel()

	cw := &captureWriter{}
	p := &Publisher{w: cw}

	ev := &notify.Event{Kind: notify.KindUnstaffed, IncidentID: "inc-2", At: time.Now()}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if string(cw.msgs[0].Key) != opsKey {
		t.Errorf("key = %q, want %q", cw.msgs[0].Key, opsKey)
	}
}

func TestPublish_WriteError(t *testing.T) {
	t.Parallel()

	p := &Publisher{w: &captureWriter{err: errors.New("broker down")}}
	err := p.Publish(context.Background(), &notify.Event{Kind: notify.KindResolved})
	if err == nil {
		t.Fatal("expected error from writer")
	}
}
