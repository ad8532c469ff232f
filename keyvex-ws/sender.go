package keyvexws

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// APIGatewaySender pushes frames to connections via the API Gateway Management
// API, caching one client per callback endpoint.
type APIGatewaySender struct {
	mu      sync.RWMutex
	clients map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

// Send posts the frame to the given connection.
func (s *APIGatewaySender) Send(ctx context.Context, endpoint, connectionID string, data []byte) error {
	client := s.client(endpoint)
	_, err := client.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	return err
}

func (s *APIGatewaySender) client(endpoint string) apigatewaymanagementapiiface.ApiGatewayManagementApiAPI {
	s.mu.RLock()
	if client, ok := s.clients[endpoint]; ok {
		s.mu.RUnlock()
		return client
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if client, ok := s.clients[endpoint]; ok {
		return client
	}

	if s.clients == nil {
		s.clients = make(map[string]apigatewaymanagementapiiface.ApiGatewayManagementApiAPI)
	}

	sess := session.Must(session.NewSession(aws.NewConfig().WithEndpoint(endpoint)))
	client := apigatewaymanagementapi.New(sess)
	s.clients[endpoint] = client
	return client
}

// isGoneException checks if the error is a GoneException (HTTP 410),
// indicating the WebSocket connection no longer exists.
func isGoneException(err error) bool {
	return strings.Contains(err.Error(), "GoneException") ||
		strings.Contains(err.Error(), "410")
}
