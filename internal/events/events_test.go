package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/align/internal/domain"
)

var testTime = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func alertEvent() Event {
	return NewHarmonyAlert("run-1", testTime, HarmonyAlert{
		Message:     "Vamos revisar juntos?",
		SpenderName: "Ana",
		Category:    domain.CategoryHousing,
		Amount:      decimal.RequireFromString("450.5"),
		Limit:       decimal.NewFromInt(1170),
	})
}

// mockChannel is a test double for amqpChannel.
type mockChannel struct {
	ExchangeDeclareFunc    func(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContextFunc func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	closed                 bool
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	if m.ExchangeDeclareFunc != nil {
		return m.ExchangeDeclareFunc(name, kind, durable, autoDelete, internal, noWait, args)
	}
	return nil
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if m.PublishWithContextFunc != nil {
		return m.PublishWithContextFunc(ctx, exchange, key, mandatory, immediate, msg)
	}
	return nil
}

func (m *mockChannel) Close() error {
	m.closed = true
	return nil
}

func TestAMQPPublisher_DeclaresDurableDirectExchange(t *testing.T) {
	var gotName, gotKind string
	var gotDurable bool
	ch := &mockChannel{
		ExchangeDeclareFunc: func(name, kind string, durable, _, _, _ bool, _ amqp091.Table) error {
			gotName, gotKind, gotDurable = name, kind, durable
			return nil
		},
	}

	if _, err := NewAMQPPublisher(ch, nil, "align", "dashboard.events", zerolog.Nop()); err != nil {
		t.Fatalf("NewAMQPPublisher() failed: %v", err)
	}
	if gotName != "align" || gotKind != "direct" || !gotDurable {
		t.Errorf("declared %q/%q durable=%v", gotName, gotKind, gotDurable)
	}
}

func TestAMQPPublisher_DeclareError(t *testing.T) {
	ch := &mockChannel{
		ExchangeDeclareFunc: func(string, string, bool, bool, bool, bool, amqp091.Table) error {
			return errors.New("access refused")
		},
	}
	if _, err := NewAMQPPublisher(ch, nil, "align", "k", zerolog.Nop()); err == nil {
		t.Fatal("expected declare error")
	}
}

func TestAMQPPublisher_Publish(t *testing.T) {
	var got amqp091.Publishing
	var gotKey string
	ch := &mockChannel{
		PublishWithContextFunc: func(ctx context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("expected publish deadline")
			}
			gotKey = key
			got = msg
			return nil
		},
	}
	p, err := NewAMQPPublisher(ch, nil, "align", "dashboard.events", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	e := alertEvent()
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	if gotKey != "dashboard.events" {
		t.Errorf("routing key = %q", gotKey)
	}
	if got.ContentType != "application/json" || got.DeliveryMode != amqp091.Persistent {
		t.Errorf("unexpected publishing headers: %+v", got)
	}
	if got.Type != string(TypeHarmonyAlert) || got.MessageId != e.ID {
		t.Errorf("Type=%q MessageId=%q", got.Type, got.MessageId)
	}

	var decoded Event
	if err := json.Unmarshal(got.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded.HarmonyAlert == nil || decoded.HarmonyAlert.Message != "Vamos revisar juntos?" {
		t.Errorf("decoded payload = %+v", decoded.HarmonyAlert)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Errorf("Close() err=%v closed=%v", err, ch.closed)
	}
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	ch := &mockChannel{
		PublishWithContextFunc: func(context.Context, string, string, bool, bool, amqp091.Publishing) error {
			return amqp091.ErrClosed
		},
	}
	p, _ := NewAMQPPublisher(ch, nil, "align", "k", zerolog.Nop())

	err := p.Publish(context.Background(), alertEvent())
	if !errors.Is(err, amqp091.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

// mockSender is a test double for discordSender.
type mockSender struct {
	ChannelMessageSendFunc func(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	calls                  int
}

func (m *mockSender) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.calls++
	return m.ChannelMessageSendFunc(channelID, content, options...)
}

func TestDiscordNotifier(t *testing.T) {
	var gotChannel, gotContent string
	sender := &mockSender{
		ChannelMessageSendFunc: func(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
			gotChannel, gotContent = channelID, content
			return &discordgo.Message{ID: "m1"}, nil
		},
	}
	n := newDiscordNotifier(sender, "chan-1", zerolog.Nop())

	if err := n.Publish(context.Background(), NewSyncCompleted("run-1", testTime, SyncCompleted{})); err != nil {
		t.Fatal(err)
	}
	if sender.calls != 0 {
		t.Fatal("sync events must not reach Discord")
	}

	if err := n.Publish(context.Background(), alertEvent()); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if gotChannel != "chan-1" {
		t.Errorf("channel = %q", gotChannel)
	}
	for _, want := range []string{"Modo Harmonia", "Vamos revisar juntos?", "Ana", "Casa Nova", "R$ 450.50"} {
		if !strings.Contains(gotContent, want) {
			t.Errorf("message missing %q: %s", want, gotContent)
		}
	}
}

func TestDiscordNotifier_Error(t *testing.T) {
	sender := &mockSender{
		ChannelMessageSendFunc: func(string, string, ...discordgo.RequestOption) (*discordgo.Message, error) {
			return nil, errors.New("missing access")
		},
	}
	n := newDiscordNotifier(sender, "chan-1", zerolog.Nop())
	if err := n.Publish(context.Background(), alertEvent()); err == nil {
		t.Error("expected error")
	}
}

func TestMulti_JoinsErrorsAndContinues(t *testing.T) {
	errA := errors.New("a down")
	delivered := 0
	m := Multi{
		PublisherFunc(func(context.Context, Event) error { return errA }),
		PublisherFunc(func(context.Context, Event) error { delivered++; return nil }),
		Nop{},
	}

	err := m.Publish(context.Background(), alertEvent())
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want to wrap errA", err)
	}
	if delivered != 1 {
		t.Error("later publishers must still receive the event")
	}

	if err := (Multi{Nop{}}).Publish(context.Background(), alertEvent()); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLogPublisher(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewLogPublisher(zerolog.New(buf))

	tx := domain.Transaction{ID: "x"}
	_ = p.Publish(context.Background(), NewSyncCompleted("run-9", testTime, SyncCompleted{Transactions: []domain.Transaction{tx}, Defaulted: 1}))

	out := buf.String()
	for _, want := range []string{`"event_type":"sync.completed"`, `"run_id":"run-9"`, `"new_transactions":1`, `"defaulted_categories":1`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}
}

func TestNewSyncFailed(t *testing.T) {
	e := NewSyncFailed("run-2", testTime, errors.New("feed unavailable"))
	if e.Type != TypeSyncFailed || e.SyncFailed.Error != "feed unavailable" || e.ID == "" {
		t.Errorf("unexpected event: %+v", e)
	}
}
