package domain

import "errors"

var (
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrInvalidStatusTransition = errors.New("invalid payment status transition")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrLegNotFound             = errors.New("leg not found")
	ErrInvalidLegTransition    = errors.New("invalid leg status transition")
	ErrCompensationNotAllowed  = errors.New("leg cannot be compensated")
	ErrRateNotFound            = errors.New("exchange rate not found")
	ErrWorkflowNotFound        = errors.New("workflow not found")
	ErrWorkflowAlreadyStarted  = errors.New("workflow already started")
)
