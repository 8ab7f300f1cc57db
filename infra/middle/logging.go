package middle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paybridge/paybridge/infra/opensearch"
)

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	startTime  time.Time
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		statusCode:     http.StatusOK,
		startTime:      time.Now(),
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// PaymentLoggingMiddleware logs payment requests and responses to OpenSearch
func PaymentLoggingMiddleware(logger *opensearch.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isPaymentEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			requestID := uuid.New().String()
			r.Header.Set("X-Request-ID", requestID)

			var requestBody []byte
			if r.Body != nil {
				requestBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			entry := buildTransactionLog(requestID, requestBody, rw)

			// index asynchronously to avoid blocking the response
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = logger.LogTransaction(ctx, entry)
			}()
		})
	}
}

// buildTransactionLog assembles the indexed record from the captured
// request and response bodies.
func buildTransactionLog(requestID string, requestBody []byte, rw *responseWriter) opensearch.TransactionLog {
	entry := opensearch.TransactionLog{
		Timestamp:        rw.startTime,
		CorrelationID:    requestID,
		ProcessingTimeMs: time.Since(rw.startTime).Milliseconds(),
	}

	if len(requestBody) > 0 {
		var requestData map[string]any
		if err := json.Unmarshal(requestBody, &requestData); err == nil {
			if amount, ok := requestData["amount"].(float64); ok {
				entry.Amount = amount
			}
			if currency, ok := requestData["currency"].(string); ok {
				entry.Currency = currency
			}
		}
	}

	if rw.body.Len() > 0 {
		var responseData map[string]any
		if err := json.Unmarshal(rw.body.Bytes(), &responseData); err == nil {
			if data, ok := responseData["data"].(map[string]any); ok {
				if provider, ok := data["provider"].(string); ok {
					entry.Provider = provider
				}
				if intent, ok := data["paymentIntent"].(map[string]any); ok {
					if id, ok := intent["id"].(string); ok {
						entry.PaymentIntentID = id
					}
					if status, ok := intent["status"].(string); ok {
						entry.Status = status
					}
				}
			}
		}
	}
	if entry.Provider == "" {
		entry.Provider = "unknown"
	}

	if rw.statusCode >= 400 {
		if errorInfo := extractErrorInfo(rw.body.String()); errorInfo != nil {
			entry.Error = *errorInfo
		}
	}

	return entry
}

// isPaymentEndpoint checks if the URL path is a payment-related endpoint
func isPaymentEndpoint(path string) bool {
	paymentPaths := []string{
		"/v1/payments",
		"/v1/refunds",
		"/webhooks",
	}

	for _, paymentPath := range paymentPaths {
		if strings.HasPrefix(path, paymentPath) {
			return true
		}
	}

	return false
}

// extractErrorInfo extracts error information from response body
func extractErrorInfo(responseBody string) *opensearch.ErrorInfo {
	if responseBody == "" {
		return nil
	}

	var responseData map[string]any
	if err := json.Unmarshal([]byte(responseBody), &responseData); err != nil {
		return nil
	}

	errorInfo := &opensearch.ErrorInfo{}

	if errorMsg, ok := responseData["error"].(string); ok {
		errorInfo.Message = errorMsg
	} else if errorMsg, ok := responseData["message"].(string); ok {
		errorInfo.Message = errorMsg
	}

	if errorCode, ok := responseData["errorCode"].(string); ok {
		errorInfo.Code = errorCode
	} else if code, ok := responseData["code"].(string); ok {
		errorInfo.Code = code
	}

	if errorInfo.Code == "" && errorInfo.Message == "" {
		return nil
	}

	return errorInfo
}
