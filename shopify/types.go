// Package shopify integrates a Shopify shop with a group's ontology:
// a cost-aware GraphQL Admin API client, HMAC-verified idempotent
// webhook intake, and resumable bulk sync driven by the job queue.
package shopify

import "encoding/json"

// GraphQLRequest is the Admin API request envelope
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLError is a single error in a GraphQL response
type GraphQLError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Throttled reports whether the error is a cost throttle
func (e GraphQLError) Throttled() bool {
	code, _ := e.Extensions["code"].(string)
	return code == "THROTTLED"
}

// ThrottleStatus is Shopify's cost bucket state returned with every response
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// QueryCost is the cost accounting in response extensions
type QueryCost struct {
	RequestedQueryCost float64        `json:"requestedQueryCost"`
	ActualQueryCost    float64        `json:"actualQueryCost"`
	ThrottleStatus     ThrottleStatus `json:"throttleStatus"`
}

// GraphQLResponse is the Admin API response envelope
type GraphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []GraphQLError  `json:"errors,omitempty"`
	Extensions struct {
		Cost *QueryCost `json:"cost,omitempty"`
	} `json:"extensions,omitempty"`
}

// PageInfo is Shopify's connection pagination marker
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// Product is the subset of Shopify product fields the sync maps
type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Vendor      string `json:"vendor"`
}

// Order is the subset of Shopify order fields the sync maps
type Order struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	TotalPriceSet struct {
		ShopMoney struct {
			Amount       string `json:"amount"`
			CurrencyCode string `json:"currencyCode"`
		} `json:"shopMoney"`
	} `json:"totalPriceSet"`
}

// Customer is the subset of Shopify customer fields the sync maps
type Customer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}
