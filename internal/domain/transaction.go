package domain

import (
	"time"
)

// RawTransaction is a human-readable payment transaction awaiting scoring.
// Timestamp and Amount are required; everything else is optional context.
// A transaction is immutable once received and lives for one scoring request.
type RawTransaction struct {
	ID string `json:"id"`

	// Required
	Timestamp time.Time `json:"timestamp"`
	Amount    float64   `json:"amount"`

	// Optional categorical/context fields
	CardType         string `json:"cardType,omitempty"`
	MerchantID       string `json:"merchantId,omitempty"`
	MerchantCategory string `json:"merchantCategory,omitempty"`
	Channel          string `json:"channel,omitempty"` // "online", "pos", "atm"
	Country          string `json:"country,omitempty"` // ISO 3166-1 alpha-2
	CustomerID       string `json:"customerId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// TransactionRequest is the API request payload for raw-mode scoring.
type TransactionRequest struct {
	Timestamp        string  `json:"timestamp"`
	Amount           float64 `json:"amount"`
	CardType         string  `json:"cardType,omitempty"`
	MerchantID       string  `json:"merchantId,omitempty"`
	MerchantCategory string  `json:"merchantCategory,omitempty"`
	Channel          string  `json:"channel,omitempty"`
	Country          string  `json:"country,omitempty"`
	CustomerID       string  `json:"customerId,omitempty"`
}

// ToTransaction converts a request to a RawTransaction domain object.
// The timestamp must already be parsed; validation happens at the API boundary.
func (r *TransactionRequest) ToTransaction(id string, ts time.Time) *RawTransaction {
	return &RawTransaction{
		ID:               id,
		Timestamp:        ts,
		Amount:           r.Amount,
		CardType:         r.CardType,
		MerchantID:       r.MerchantID,
		MerchantCategory: r.MerchantCategory,
		Channel:          r.Channel,
		Country:          r.Country,
		CustomerID:       r.CustomerID,
		CreatedAt:        time.Now().UTC(),
	}
}

// UserStats holds historical amount statistics for a customer, used for
// deviation-based amount risk. Supplied by the history lookup when available.
type UserStats struct {
	MeanAmount float64 `json:"meanAmount"`
	StdAmount  float64 `json:"stdAmount"`
	TxCount    int64   `json:"txCount"`
}
