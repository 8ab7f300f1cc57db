package config

import (
	"os"
	"strings"
)

// credentialKeys maps each provider to the config keys its adapter reads.
// Environment variables follow the pattern <PROVIDER>_<KEY_SNAKE_CASE>,
// e.g. STRIPE_SECRET_KEY or PAYPAL_CLIENT_ID.
var credentialKeys = map[string][]string{
	"stripe": {"secretKey", "publicKey", "webhookSecret"},
	"paypal": {"clientId", "clientSecret", "webhookId"},
}

// ProviderCredentials reads the credential set for a provider from the
// environment. Providers with no configured credentials return an empty map
// so discovery can skip them.
func ProviderCredentials(providerName string) map[string]string {
	keys, ok := credentialKeys[providerName]
	if !ok {
		return nil
	}

	creds := make(map[string]string, len(keys)+1)
	prefix := strings.ToUpper(providerName) + "_"
	for _, key := range keys {
		if value := os.Getenv(prefix + toSnakeUpper(key)); value != "" {
			creds[key] = value
		}
	}
	if len(creds) == 0 {
		return nil
	}

	creds["environment"] = GetEnv(prefix+"ENVIRONMENT", GetAppConfig().Environment)
	return creds
}

// toSnakeUpper converts a camelCase config key to SCREAMING_SNAKE_CASE
func toSnakeUpper(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
