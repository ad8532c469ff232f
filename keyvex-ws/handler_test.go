package keyvexws

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/tj/assert"
)

func wsRequest(route, connID string, query map[string]string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		QueryStringParameters: query,
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			ConnectionID: connID,
			RouteKey:     route,
			DomainName:   "example.execute-api.us-west-2.amazonaws.com",
			Stage:        "dev",
		},
	}
}

func testHandler(store *fakeStore, sender *fakeSender) *Handler {
	return &Handler{
		Registry: NewRegistry(store),
		Sender:   sender,
		Logger:   zerolog.Nop(),
	}
}

func TestHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("connect registers the connection", func(t *testing.T) {
		store := newFakeStore()
		h := testHandler(store, newFakeSender())

		resp, err := h.HandleEvent(ctx, wsRequest("$connect", "connA", map[string]string{
			"userId":    "user1",
			"sessionId": "sess1",
		}))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		conns, err := h.Registry.FindByUser(ctx, "user1")
		assert.NoError(t, err)
		assert.Len(t, conns, 1)
		assert.Equal(t, "sess1", conns[0].SessionID)
		assert.Equal(t, "https://example.execute-api.us-west-2.amazonaws.com/dev", conns[0].Endpoint)
	})

	t.Run("connect without userId is rejected before the store is touched", func(t *testing.T) {
		store := newFakeStore()
		h := testHandler(store, newFakeSender())

		resp, err := h.HandleEvent(ctx, wsRequest("$connect", "connA", nil))
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, 0, store.puts)
	})

	t.Run("connect takes identity from the authorizer principal", func(t *testing.T) {
		store := newFakeStore()
		h := testHandler(store, newFakeSender())

		req := wsRequest("$connect", "connA", nil)
		req.RequestContext.Authorizer = map[string]interface{}{"principalId": "user1"}

		resp, err := h.HandleEvent(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		conns, err := h.Registry.FindByUser(ctx, "user1")
		assert.NoError(t, err)
		assert.Len(t, conns, 1)
	})

	t.Run("connect succeeds at the transport level when the store is down", func(t *testing.T) {
		store := newFakeStore()
		store.err = fmt.Errorf("dynamo is down")
		h := testHandler(store, newFakeSender())

		resp, err := h.HandleEvent(ctx, wsRequest("$connect", "connA", map[string]string{"userId": "user1"}))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("auth hook rejects with 401", func(t *testing.T) {
		store := newFakeStore()
		h := testHandler(store, newFakeSender())
		h.Auth = func(req events.APIGatewayWebsocketProxyRequest) error {
			return fmt.Errorf("bad token")
		}

		resp, err := h.HandleEvent(ctx, wsRequest("$connect", "connA", map[string]string{"userId": "user1"}))
		assert.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, 0, store.puts)
	})

	t.Run("disconnect unregisters, and twice is fine", func(t *testing.T) {
		store := newFakeStore()
		h := testHandler(store, newFakeSender())

		_, err := h.HandleEvent(ctx, wsRequest("$connect", "connA", map[string]string{"userId": "user1"}))
		assert.NoError(t, err)

		resp, err := h.HandleEvent(ctx, wsRequest("$disconnect", "connA", nil))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		resp, err = h.HandleEvent(ctx, wsRequest("$disconnect", "connA", nil))
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		conns, err := h.Registry.FindByUser(ctx, "user1")
		assert.NoError(t, err)
		assert.Len(t, conns, 0)
	})

	t.Run("ping answers pong and refreshes activity", func(t *testing.T) {
		store := newFakeStore()
		sender := newFakeSender()
		h := testHandler(store, sender)

		_, err := h.HandleEvent(ctx, wsRequest("$connect", "connA", map[string]string{"userId": "user1"}))
		assert.NoError(t, err)

		req := wsRequest("$default", "connA", nil)
		req.Body = `{"type":"ping"}`
		resp, err := h.HandleEvent(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		frames := sender.frames("connA")
		assert.Len(t, frames, 1)
		msg, err := ParseMessage(string(frames[0]))
		assert.NoError(t, err)
		assert.Equal(t, MsgPong, msg.Type)
	})

	t.Run("malformed frame is a 400", func(t *testing.T) {
		h := testHandler(newFakeStore(), newFakeSender())

		req := wsRequest("$default", "connA", nil)
		req.Body = `not json`
		resp, err := h.HandleEvent(ctx, req)
		assert.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}
