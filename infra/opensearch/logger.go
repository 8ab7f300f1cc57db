package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// TransactionLog represents a structured transaction log entry
type TransactionLog struct {
	Timestamp        time.Time `json:"timestamp"`
	Provider         string    `json:"provider"`
	CorrelationID    string    `json:"correlation_id"`
	PaymentIntentID  string    `json:"payment_intent_id,omitempty"`
	Status           string    `json:"status,omitempty"`
	Amount           float64   `json:"amount,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	Attempts         int       `json:"attempts,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms,omitempty"`
	Error            ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`
	Category string `json:"category,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogTransaction indexes a transaction record
func (l *Logger) LogTransaction(ctx context.Context, log TransactionLog) error {
	if !l.client.IsEnabled() {
		return nil // Logging disabled
	}

	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}
	if log.CorrelationID == "" {
		log.CorrelationID = uuid.New().String()
	}

	indexName := l.client.GetTransactionIndexName(log.Provider)

	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(logJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchTransactions searches transaction logs based on criteria
func (l *Logger) SearchTransactions(ctx context.Context, provider string, query map[string]any) ([]TransactionLog, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	indexName := l.client.GetTransactionIndexName(provider)

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100, // Limit results
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source TransactionLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	logs := make([]TransactionLog, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		logs[i] = hit.Source
	}

	return logs, nil
}

// GetTransactionLogs retrieves logs for a specific payment intent
func (l *Logger) GetTransactionLogs(ctx context.Context, provider, paymentIntentID string) ([]TransactionLog, error) {
	query := map[string]any{
		"match": map[string]any{
			"payment_intent_id": paymentIntentID,
		},
	}

	return l.SearchTransactions(ctx, provider, query)
}

// GetRecentErrorLogs retrieves recent error logs for a provider
func (l *Logger) GetRecentErrorLogs(ctx context.Context, provider string, hours int) ([]TransactionLog, error) {
	query := map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{
					"range": map[string]any{
						"timestamp": map[string]any{
							"gte": fmt.Sprintf("now-%dh", hours),
						},
					},
				},
				{
					"exists": map[string]any{
						"field": "error.code",
					},
				},
			},
		},
	}

	return l.SearchTransactions(ctx, provider, query)
}

// GetProviderStats retrieves aggregate statistics for a provider
func (l *Logger) GetProviderStats(ctx context.Context, provider string, hours int) (map[string]any, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	indexName := l.client.GetTransactionIndexName(provider)

	aggQuery := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": fmt.Sprintf("now-%dh", hours),
				},
			},
		},
		"aggs": map[string]any{
			"total_transactions": map[string]any{
				"value_count": map[string]any{
					"field": "correlation_id",
				},
			},
			"success_count": map[string]any{
				"filter": map[string]any{
					"term": map[string]any{
						"status": "succeeded",
					},
				},
			},
			"error_count": map[string]any{
				"filter": map[string]any{
					"exists": map[string]any{
						"field": "error.code",
					},
				},
			},
			"avg_processing_time": map[string]any{
				"avg": map[string]any{
					"field": "processing_time_ms",
				},
			},
			"statuses": map[string]any{
				"terms": map[string]any{
					"field": "status",
					"size":  10,
				},
			},
		},
		"size": 0, // We only want aggregations
	}

	queryJSON, err := json.Marshal(aggQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregation query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("aggregation search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch aggregation error: %s", res.String())
	}

	var result map[string]any
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation results: %w", err)
	}

	return result, nil
}

// SanitizeForLog removes sensitive information from data before logging
func SanitizeForLog(data string) string {
	sensitiveFields := []string{
		"cardNumber", "card_number", "cvv", "cvc", "cardHolderName", "card_holder_name",
		"number", "security_code", "apiKey", "api_key", "secretKey", "secret_key",
		"clientSecret", "client_secret", "password", "token",
		"authorization", "x-api-key", "x-secret-key",
	}

	result := data
	for _, field := range sensitiveFields {
		patterns := []string{
			fmt.Sprintf(`"%s"\s*:\s*"[^"]*"`, field), // JSON format with double quotes
			fmt.Sprintf(`"%s"\s*:\s*'[^']*'`, field), // JSON format with single quotes
			fmt.Sprintf(`%s=\w+`, field),             // URL parameter format
		}

		for _, pattern := range patterns {
			re := regexp.MustCompile(pattern)
			result = re.ReplaceAllString(result, fmt.Sprintf(`"%s":"***REDACTED***"`, field))
		}
	}

	return result
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, log any) error {
	if !l.client.IsEnabled() {
		return nil // Logging disabled
	}

	indexName := "paybridge-system-logs"

	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal system log: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(logJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index system log: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch system log error: %s", res.String())
	}

	return nil
}
