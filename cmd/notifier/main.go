package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bidhaaline/fulfillment/internal/config"
	"github.com/bidhaaline/fulfillment/internal/events"
	kafkax "github.com/bidhaaline/fulfillment/internal/kafka"
)

// The notifier tails the fulfillment event stream and emits customer and
// operator notifications. Delivery here is the structured log; swapping in
// an email or SMS provider only touches the notify funcs.

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	topics := []string{
		events.TopicOrderCreated,
		events.TopicOrderCancelled,
		events.TopicPaymentConfirmed,
		events.TopicPaymentFailed,
		events.TopicCallbackDeadLetter,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers, log)
	n := &notifier{log: log}

	go func() {
		log.Info("notifier consumer started",
			zap.String("group", group),
			zap.Strings("topics", topics),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, n.handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down notifier")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

type notifier struct {
	log *zap.Logger
}

func (n *notifier) handle(ctx context.Context, m kafka.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// malformed envelope; commit and move on, replaying will not fix it
		n.log.Warn("bad envelope", zap.String("topic", m.Topic), zap.Error(err))
		return nil
	}

	switch env.EventType {
	case events.TypeOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		n.log.Info("notify: order placed",
			zap.String("order_id", p.OrderID),
			zap.String("user_id", p.UserID),
			zap.String("total", shillings(p.TotalCents)),
			zap.Int("items", p.ItemCount))
	case events.TypeOrderCancelled:
		p, err := kafkax.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		n.log.Info("notify: order cancelled",
			zap.String("order_id", p.OrderID),
			zap.String("user_id", p.UserID))
	case events.TypePaymentConfirmed:
		p, err := kafkax.UnwrapPayload[events.PaymentConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		n.log.Info("notify: payment received",
			zap.String("order_id", p.OrderID),
			zap.String("receipt", p.ReceiptNumber),
			zap.String("amount", shillings(p.AmountCents)))
	case events.TypePaymentFailed:
		p, err := kafkax.UnwrapPayload[events.PaymentFailedPayload](env.Payload)
		if err != nil {
			return err
		}
		n.log.Info("notify: payment failed",
			zap.String("order_id", p.OrderID),
			zap.Int("result_code", p.ResultCode),
			zap.String("result_desc", p.ResultDesc))
	case events.TypeCallbackDeadLetter:
		p, err := kafkax.UnwrapPayload[events.CallbackDeadLetterPayload](env.Payload)
		if err != nil {
			return err
		}
		// operator alert, not a customer notification
		n.log.Warn("alert: payment callback needs manual review",
			zap.String("checkout_request_id", p.CheckoutRequestID),
			zap.String("reason", p.Reason))
	default:
		n.log.Warn("unknown event type",
			zap.String("event_type", env.EventType),
			zap.String("topic", m.Topic))
	}
	return nil
}

func shillings(cents int64) string {
	return fmt.Sprintf("KES %d.%02d", cents/100, cents%100)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
