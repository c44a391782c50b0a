package models

import "time"

// Offer is one search result from the registrar.
type Offer struct {
	// Domain is the full candidate name (example.com).
	Domain string `json:"domain"`
	// Available reports whether the name can be registered.
	Available bool `json:"available"`
	// Price is the first-year registration price. Nil when unavailable;
	// the registrar quotes no price for taken names.
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`
	// Premium marks aftermarket names with elevated pricing.
	Premium bool `json:"premium,omitempty"`
}

// OrderStatus is the registrar-side progress of a purchase.
type OrderStatus string

const (
	// OrderPendingPayment: checkout opened, payment not yet confirmed.
	OrderPendingPayment OrderStatus = "pending_payment"
	// OrderRegistering: payment confirmed, registration submitted.
	OrderRegistering OrderStatus = "registering"
	// OrderConfiguringDNS: registered, registrar is creating the zone.
	OrderConfiguringDNS OrderStatus = "configuring_dns"
	// OrderUpdatingNameservers: pointing the domain at the platform.
	OrderUpdatingNameservers OrderStatus = "updating_nameservers"
	// OrderCompleted: terminal success.
	OrderCompleted OrderStatus = "completed"
	// OrderFailed: terminal failure after payment was attempted. Never
	// retried silently; a human has to look at failed orders.
	OrderFailed OrderStatus = "failed"
)

// IsTerminal reports whether polling can stop.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

// Order is the registrar's view of a purchase, as returned by status polls.
// The id is the registrar's, opaque to this service.
type Order struct {
	ID     string      `json:"id"`
	Domain string      `json:"domain"`
	Status OrderStatus `json:"status"`
	// Step is the registrar's human-readable progress line.
	Step string `json:"step,omitempty"`
	// Reason carries the failure cause when Status is failed.
	Reason string `json:"reason,omitempty"`
	// Nameservers the registrar assigned. Set once registration completes;
	// used to decide the new domain's DNS strategy.
	Nameservers []string   `json:"nameservers,omitempty"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CheckoutSession is the registrar's answer to a buy request. OrderID may be
// empty until payment completes; PaymentSessionID then identifies the order
// on the post-payment return.
type CheckoutSession struct {
	OrderID          string `json:"orderId,omitempty"`
	PaymentSessionID string `json:"paymentSessionId,omitempty"`
	CheckoutURL      string `json:"checkoutUrl"`
}

// Ref returns the best identifier for tracking this session's order.
func (c CheckoutSession) Ref() string {
	if c.OrderID != "" {
		return c.OrderID
	}
	return c.PaymentSessionID
}
