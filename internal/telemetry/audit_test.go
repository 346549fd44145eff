package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturePublisher struct {
	routingKey string
	event      any
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.event = event
	return nil
}

func TestAuditEmitterEmit(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "roomchat", "test", zap.NewNop())
	user := "alice"

	emitter.Emit(context.Background(), "WARN", "forbidden edit", "req-1", &user)

	assert.Equal(t, "audit.chat", pub.routingKey)
	envelope, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", envelope.EventType)
	assert.Equal(t, "roomchat", envelope.Service)
	assert.Equal(t, "req-1", envelope.RequestID)
	assert.Equal(t, "alice", *envelope.Username)
	assert.Equal(t, AuditPayload{Level: "WARN", Text: "forbidden edit"}, envelope.Payload)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "noop", "", nil)
}
