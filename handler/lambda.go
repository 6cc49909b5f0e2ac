package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"finlitbot/internal/domain"
)

// Handle serves the chat and health routes behind an API Gateway proxy
// integration. It mirrors the HTTP server's contract for those routes.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = newCorrelationID()
	}
	ctx = context.WithValue(ctx, correlationKey{}, corrID)

	switch {
	case req.HTTPMethod == http.MethodPost && req.Path == "/api/chat":
		body, err := requestBody(req)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, errorResponse{Error: codeInvalidInput}, corrID), nil
		}
		var in domain.ChatRequest
		if err := json.Unmarshal(body, &in); err != nil {
			h.logger.InfoContext(ctx, "invalid chat body", "correlation_id", corrID, "err", err)
			return jsonResponse(http.StatusBadRequest, errorResponse{Error: codeInvalidInput}, corrID), nil
		}
		return jsonResponse(http.StatusOK, h.relay.Relay(ctx, in.Message), corrID), nil

	case req.HTTPMethod == http.MethodGet && req.Path == "/health":
		return jsonResponse(http.StatusOK, healthResponse{Status: "healthy"}, corrID), nil

	default:
		return jsonResponse(http.StatusNotFound, errorResponse{Error: codeNotFound}, corrID), nil
	}
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

// headerValue looks a header up case-insensitively; API Gateway passes
// headers through with whatever casing the client used.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, v any, corrID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
			correlationHeader:             corrID,
		},
		Body: string(body),
	}
}
