package models

import "encoding/json"

// Requests for transaction HTTP endpoints.

type DepositRequest struct {
	TransactionID string                 `json:"transaction_id" validate:"omitempty,max=64"`
	UserID        string                 `json:"user_id" validate:"required,max=64"`
	Amount        json.Number            `json:"amount" validate:"required,numeric"`
	Currency      string                 `json:"currency" default:"USD" validate:"len=3"`
	Method        string                 `json:"method" validate:"required"`
	Metadata      map[string]interface{} `json:"metadata"`
}

type WithdrawalRequest struct {
	TransactionID string                 `json:"transaction_id" validate:"omitempty,max=64"`
	UserID        string                 `json:"user_id" validate:"required,max=64"`
	Amount        json.Number            `json:"amount" validate:"required,numeric"`
	Currency      string                 `json:"currency" default:"USD" validate:"len=3"`
	Method        string                 `json:"method" validate:"required"`
	Details       map[string]string      `json:"details"`
	Metadata      map[string]interface{} `json:"metadata"`
}

type ReviewRequest struct {
	Approved bool   `json:"approved"`
	Reviewer string `json:"reviewer" validate:"required"`
	Note     string `json:"note" validate:"max=500"`
}

type HistoryRequest struct {
	UserID string `param:"id" validate:"required"`
	Kind   string `query:"kind" validate:"omitempty,oneof=deposit withdrawal"`
	From   string `query:"from"`
	To     string `query:"to"`
}

type SummaryRequest struct {
	UserID string `param:"id" validate:"required"`
	From   string `query:"from"`
	To     string `query:"to"`
	Bucket string `query:"bucket" validate:"omitempty,oneof=1h 1d 1w"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=50000"`
}

type ActivityBatchRequest struct {
	Events []ActivityEvent `json:"events" validate:"required,min=1,max=1000,dive"`
}
