package paypal

import "github.com/paybridge/paybridge/provider"

// Register the PayPal adapter with the provider catalog
func init() {
	provider.RegisterFactory("paypal", NewProvider)
}
