// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"fmt"
)

var validOperationTypes = map[string]bool{
	OpTypeSale:            true,
	OpTypeExpense:         true,
	OpTypeRecord:          true,
	OpTypePayment:         true,
	OpTypeStockAdjustment: true,
}

var validMethods = map[string]bool{
	"POST":  true,
	"PUT":   true,
	"PATCH": true,
}

var validStrategies = map[string]bool{
	StrategyClientWins: true,
	StrategyServerWins: true,
	StrategyMerge:      true,
	StrategyManual:     true,
}

// validateEnqueue checks an enqueue request before any write occurs.
func (s *SyncService) validateEnqueue(req *EnqueueRequest) error {
	if req == nil {
		return &ValidationError{Message: "enqueue request is required"}
	}
	if !validOperationTypes[req.OperationType] {
		return &ValidationError{Field: "operation_type", Message: fmt.Sprintf("unsupported operation type %q", req.OperationType)}
	}
	if req.OperationID == "" {
		return &ValidationError{Field: "operation_id", Message: "idempotency key is required"}
	}
	if req.Endpoint == "" {
		return &ValidationError{Field: "endpoint", Message: "replay endpoint is required"}
	}
	if !validMethods[req.Method] {
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q (POST, PUT, PATCH)", req.Method)}
	}
	if max := s.config.MaxPayloadBytes; max > 0 && len(req.RequestBody) > max {
		return &ValidationError{Field: "request_body", Message: fmt.Sprintf("payload exceeds %d bytes", max)}
	}
	if req.MaxRetries < 0 {
		return &ValidationError{Field: "max_retries", Message: "must not be negative"}
	}
	return nil
}

// validateStrategy rejects unknown resolution strategies before any write.
func validateStrategy(strategy string) error {
	if !validStrategies[strategy] {
		return &ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown resolution strategy %q", strategy)}
	}
	return nil
}

// allowedOffline checks the per-business policy for one operation type.
// Types without a dedicated flag (record, payment) are always allowed.
func allowedOffline(cfg *OfflineConfig, operationType string) bool {
	switch operationType {
	case OpTypeSale:
		return cfg.AllowSalesOffline
	case OpTypeExpense:
		return cfg.AllowExpensesOffline
	case OpTypeStockAdjustment:
		return cfg.AllowStockAdjustOffline
	default:
		return true
	}
}
