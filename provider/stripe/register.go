package stripe

import "github.com/paybridge/paybridge/provider"

// Register the Stripe adapter with the provider catalog
func init() {
	provider.RegisterFactory("stripe", NewProvider)
}
