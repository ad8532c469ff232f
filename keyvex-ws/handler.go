package keyvexws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
)

// Authorizer validates a connect request before it is registered. Returning an
// error rejects the connection with a 401.
type Authorizer func(req events.APIGatewayWebsocketProxyRequest) error

// Handler handles API Gateway WebSocket lifecycle and client frames.
type Handler struct {
	Registry *Registry
	Sender   Sender
	Logger   zerolog.Logger
	Auth     Authorizer // optional
}

// Start runs the handler as a Lambda function.
func (h *Handler) Start() error {
	lambda.Start(h.HandleEvent)
	return nil
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()

	switch req.RequestContext.RouteKey {
	case "$connect":
		return h.handleConnect(ctx, logger, req)
	case "$disconnect":
		return h.handleDisconnect(ctx, logger, req)
	case "$default":
		return h.handleMessage(ctx, logger, req)
	default:
		logger.Warn().Str("route", req.RequestContext.RouteKey).Msg("unknown route")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}
}

// userIdentity pulls the user id from the query string, falling back to the
// authorizer principal when a custom authorizer is attached.
func userIdentity(req events.APIGatewayWebsocketProxyRequest) string {
	if userID := req.QueryStringParameters["userId"]; userID != "" {
		return userID
	}
	if auth, ok := req.RequestContext.Authorizer.(map[string]interface{}); ok {
		if principal, ok := auth["principalId"].(string); ok {
			return principal
		}
	}
	return ""
}

func callbackEndpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}

func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	if h.Auth != nil {
		if err := h.Auth(req); err != nil {
			logger.Warn().Err(err).Msg("connect rejected")
			return events.APIGatewayProxyResponse{StatusCode: 401}, nil
		}
	}

	userID := userIdentity(req)
	if userID == "" {
		// rejected before any store interaction
		logger.Warn().Msg("connect missing userId")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}

	connID := req.RequestContext.ConnectionID
	sessionID := req.QueryStringParameters["sessionId"]

	err := h.Registry.Register(ctx, userID, connID, sessionID, callbackEndpoint(req))
	if errors.Is(err, ErrStoreUnavailable) {
		// the transport connect still succeeds; the connection just won't
		// receive progress pushes until the next register
		logger.Error().Err(err).Msg("failed to store connection")
		return events.APIGatewayProxyResponse{StatusCode: 200}, nil
	}
	if err != nil {
		logger.Warn().Err(err).Msg("connect rejected")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}

	logger.Info().Str("user_id", userID).Msg("connection established")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.Registry.Unregister(ctx, req.RequestContext.ConnectionID); err != nil {
		logger.Error().Err(err).Msg("failed to delete connection")
	}

	logger.Info().Msg("connection closed")
	return events.APIGatewayProxyResponse{StatusCode: 200}, nil
}

func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	msg, err := ParseMessage(req.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid message")
		return events.APIGatewayProxyResponse{StatusCode: 400}, nil
	}

	connID := req.RequestContext.ConnectionID
	endpoint := callbackEndpoint(req)

	switch msg.Type {
	case MsgPing:
		if err := h.Registry.Refresh(ctx, connID); err != nil {
			logger.Warn().Err(err).Msg("failed to refresh connection activity")
		}
		if err := h.Sender.Send(ctx, endpoint, connID, PongMessage()); err != nil {
			logger.Error().Err(err).Msg("failed to send pong")
		}
		return events.APIGatewayProxyResponse{StatusCode: 200}, nil
	default:
		logger.Warn().Str("type", msg.Type).Msg("unhandled message type")
		return events.APIGatewayProxyResponse{StatusCode: 200}, nil
	}
}
