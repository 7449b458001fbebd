package integration

import (
	"testing"

	"github.com/israelio/rabbit-go-core/rabbitmq"
)

// declareDeadLetterPair declares a fanout dead letter exchange with a bound
// queue and returns the exchange and queue names
func declareDeadLetterPair(t *testing.T, conn *rabbitmq.BlockingConnection, ch *rabbitmq.BlockingChannel) (string, string) {
	t.Helper()
	ctx := testContext(t)

	exchange := GenerateExchangeName(t) + ".dlx"
	t.Cleanup(func() { CleanupExchange(t, conn, exchange) })
	if err := ch.ExchangeDeclare(ctx, exchange, rabbitmq.ExchangeFanout, rabbitmq.ExchangeDeclareOptions{}); err != nil {
		t.Fatalf("DLX ExchangeDeclare failed: %v", err)
	}

	queue := DeclareTestQueue(t, conn, ch, nil)
	if err := ch.QueueBind(ctx, queue, exchange, "", rabbitmq.QueueBindOptions{}); err != nil {
		t.Fatalf("DLX QueueBind failed: %v", err)
	}
	return exchange, queue
}

// deathCount returns the count of the first x-death entry
func deathCount(t *testing.T, headers rabbitmq.Table) int64 {
	t.Helper()

	deaths, ok := headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		t.Fatalf("x-death header missing: %v", headers)
	}
	death, ok := deaths[0].(rabbitmq.Table)
	if !ok {
		t.Fatalf("x-death entry: got %T, want Table", deaths[0])
	}
	count, _ := death["count"].(int64)
	return count
}

// TestDeadLetterExchange tests that a rejected message is dead lettered
func TestDeadLetterExchange(t *testing.T) {
	conn, ch := NewTestChannel(t)
	exchange, dlq := declareDeadLetterPair(t, conn, ch)
	queue := DeclareTestQueue(t, conn, ch, rabbitmq.Table{"x-dead-letter-exchange": exchange})

	PublishN(t, ch, queue, 1)
	ConsumeN(t, conn, ch, queue, 1, rabbitmq.ConsumeOptions{}, func(d rabbitmq.Delivery) error {
		return d.Reject(false)
	})

	resp := getEventually(t, ch, dlq)
	if string(resp.Body) != "msg-0" {
		t.Errorf("Body: got %q, want msg-0", resp.Body)
	}
	if n := deathCount(t, resp.Properties.Headers); n != 1 {
		t.Errorf("x-death count: got %d, want 1", n)
	}
}

// TestDeadLetterWithRoutingKey tests x-dead-letter-routing-key
func TestDeadLetterWithRoutingKey(t *testing.T) {
	ctx := testContext(t)
	conn, ch := NewTestChannel(t)

	exchange := GenerateExchangeName(t) + ".dlx"
	t.Cleanup(func() { CleanupExchange(t, conn, exchange) })
	if err := ch.ExchangeDeclare(ctx, exchange, rabbitmq.ExchangeDirect, rabbitmq.ExchangeDeclareOptions{}); err != nil {
		t.Fatalf("ExchangeDeclare failed: %v", err)
	}
	dlq := DeclareTestQueue(t, conn, ch, nil)
	if err := ch.QueueBind(ctx, dlq, exchange, "dead", rabbitmq.QueueBindOptions{}); err != nil {
		t.Fatalf("QueueBind failed: %v", err)
	}

	queue := DeclareTestQueue(t, conn, ch, rabbitmq.Table{
		"x-dead-letter-exchange":    exchange,
		"x-dead-letter-routing-key": "dead",
	})
	PublishN(t, ch, queue, 1)

	resp, err := ch.Get(ctx, queue, false)
	if err != nil || resp == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := resp.Nack(false, false); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}

	dead := getEventually(t, ch, dlq)
	if dead.RoutingKey != "dead" {
		t.Errorf("RoutingKey: got %q, want dead", dead.RoutingKey)
	}
}

// TestDeadLetterOnMaxLength tests overflow dead lettering
func TestDeadLetterOnMaxLength(t *testing.T) {
	ctx := testContext(t)
	conn, ch := NewTestChannel(t)
	exchange, dlq := declareDeadLetterPair(t, conn, ch)
	queue := DeclareTestQueue(t, conn, ch, rabbitmq.Table{
		"x-dead-letter-exchange": exchange,
		"x-max-length":           int32(2),
	})

	PublishN(t, ch, queue, 3)

	resp := getEventually(t, ch, dlq)
	if string(resp.Body) != "msg-0" {
		t.Errorf("Oldest message should overflow: got %q", resp.Body)
	}
	q, err := ch.QueueDeclarePassive(ctx, queue)
	if err != nil {
		t.Fatalf("QueueDeclarePassive failed: %v", err)
	}
	if q.Messages != 2 {
		t.Errorf("Messages: got %d, want 2", q.Messages)
	}
}

// TestDeadLetterOnTTL tests expiry dead lettering
func TestDeadLetterOnTTL(t *testing.T) {
	ctx := testContext(t)
	conn, ch := NewTestChannel(t)
	exchange, dlq := declareDeadLetterPair(t, conn, ch)
	queue := DeclareTestQueue(t, conn, ch, rabbitmq.Table{"x-dead-letter-exchange": exchange})

	err := ch.Publish(ctx, "", queue, false, false, rabbitmq.Publishing{
		Properties: rabbitmq.Properties{Expiration: "50"},
		Body:       []byte("expires"),
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	resp := getEventually(t, ch, dlq)
	if string(resp.Body) != "expires" {
		t.Errorf("Body: got %q, want expires", resp.Body)
	}
}
