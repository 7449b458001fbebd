package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/israelio/rabbit-go-core/rabbitmq"
)

// TestConnectionLifecycle tests basic connection open/close
func TestConnectionLifecycle(t *testing.T) {
	ctx := testContext(t)
	conn := NewTestConnection(t)

	if conn.IsClosed() {
		t.Error("Connection should be open")
	}
	if state := conn.Connection().State(); state != rabbitmq.StateOpen {
		t.Errorf("Connection state: got %v, want %v", state, rabbitmq.StateOpen)
	}
	if product := conn.Connection().ServerProperties()["product"]; product != "RabbitMQ" {
		t.Errorf("Server product: got %v, want RabbitMQ", product)
	}

	if err := conn.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !conn.IsClosed() {
		t.Error("Connection should be closed")
	}
	if err := conn.Connection().CloseError(); err != nil {
		t.Errorf("CloseError after a graceful close: got %v, want nil", err)
	}
}

// TestConnectionParameters tests connection parameter negotiation
func TestConnectionParameters(t *testing.T) {
	conn := NewTestConnection(t,
		rabbitmq.WithChannelMax(100),
		rabbitmq.WithFrameMax(65536),
		rabbitmq.WithHeartbeat(15*time.Second),
		rabbitmq.WithConnectionName("integration"),
	)

	c := conn.Connection()
	if c.ChannelMax() != 100 {
		t.Errorf("ChannelMax: got %d, want 100", c.ChannelMax())
	}
	if c.FrameMax() != 65536 {
		t.Errorf("FrameMax: got %d, want 65536", c.FrameMax())
	}
	if c.Heartbeat() != 15*time.Second {
		t.Errorf("Heartbeat: got %v, want 15s", c.Heartbeat())
	}
}

// TestAuthenticationFailure tests refused credentials
func TestAuthenticationFailure(t *testing.T) {
	NewTestConnection(t).Close(testContext(t))

	cfg, err := rabbitmq.ParseURI(brokerURL(), rabbitmq.WithCredentials("nobody", "wrong"))
	if err != nil {
		t.Fatalf("ParseURI failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = rabbitmq.DialConfig(ctx, cfg)
	if !errors.Is(err, rabbitmq.ErrSetupFailed) {
		t.Fatalf("Dial with bad credentials: got %v, want ErrSetupFailed", err)
	}
	var amqpErr *rabbitmq.Error
	if !errors.Is(err, rabbitmq.ErrProbableAuthentication) && !(errors.As(err, &amqpErr) && amqpErr.Code == 403) {
		t.Errorf("Dial with bad credentials: got %v, want an authentication failure", err)
	}
}

// TestMultipleChannels tests several channels on one connection
func TestMultipleChannels(t *testing.T) {
	ctx := testContext(t)
	conn := NewTestConnection(t)

	var channels []*rabbitmq.BlockingChannel
	for i := 0; i < 5; i++ {
		ch, err := conn.Channel(ctx)
		if err != nil {
			t.Fatalf("Failed to create channel %d: %v", i, err)
		}
		channels = append(channels, ch)
	}

	seen := map[uint16]bool{}
	for _, ch := range channels {
		if seen[ch.ID()] {
			t.Errorf("Channel id %d allocated twice", ch.ID())
		}
		seen[ch.ID()] = true
	}

	for _, ch := range channels {
		if err := ch.Close(ctx); err != nil {
			t.Errorf("Channel close failed: %v", err)
		}
	}
}

// TestChannelCloseNotification tests a broker channel error
func TestChannelCloseNotification(t *testing.T) {
	ctx := testContext(t)
	conn, ch := NewTestChannel(t)

	var notified error
	ch.Channel().NotifyClose(func(err error) { notified = err })

	_, err := ch.QueueDeclarePassive(ctx, GenerateQueueName(t))
	if !errors.Is(err, rabbitmq.ErrChannelClosed) {
		t.Fatalf("Passive declare of a missing queue: got %v, want ErrChannelClosed", err)
	}

	var amqpErr *rabbitmq.Error
	if !errors.As(notified, &amqpErr) || amqpErr.Code != 404 {
		t.Errorf("Close notification: got %v, want a 404", notified)
	}
	if !ch.IsClosed() {
		t.Error("Channel should be closed")
	}
	if conn.IsClosed() {
		t.Error("Connection should survive a channel error")
	}
}

// TestConnectionHeartbeat tests that an idle connection stays up while
// events are processed
func TestConnectionHeartbeat(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	conn := NewTestConnection(t, rabbitmq.WithHeartbeat(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	if err := conn.ProcessEvents(ctx); err != nil {
		t.Fatalf("ProcessEvents failed: %v", err)
	}

	stats := conn.Connection().Stats()
	if stats.HeartbeatsSent == 0 {
		t.Error("No heartbeat sent")
	}
	if stats.HeartbeatsReceived == 0 {
		t.Error("No heartbeat received")
	}
	if conn.IsClosed() {
		t.Error("Connection should still be open")
	}
}
