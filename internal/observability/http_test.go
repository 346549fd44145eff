package observability

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", IPFromRequest(req))
}

func TestRequestIDFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.NotEmpty(t, RequestIDFromRequest(req))

	req.Header.Set(RequestIDHeader, "abc")
	assert.Equal(t, "abc", RequestIDFromRequest(req))
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestBuildHeaders(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

func TestPublishEvent(t *testing.T) {
	assert.NoError(t, PublishEvent(context.Background(), "k", nil, nil))

	pub := &recordingPublisher{}
	SetPublisher(pub)
	t.Cleanup(func() { SetPublisher(nil) })

	assert.NoError(t, PublishEvent(context.Background(), "chat.message.created", EventEnvelope{}, nil))
	assert.Equal(t, []string{"chat.message.created"}, pub.keys)
}
