package domain

import (
	"strconv"
	"strings"
)

type OrderStatus string

const (
	OrderStatusWaiting     OrderStatus = "Waiting"
	OrderStatusPreparation OrderStatus = "Preparation"
	OrderStatusReady       OrderStatus = "Ready"
	OrderStatusDelivered   OrderStatus = "Delivered"
)

// statusFlow lists the lifecycle in order; each state may only advance to the next one.
var statusFlow = []OrderStatus{
	OrderStatusWaiting,
	OrderStatusPreparation,
	OrderStatusReady,
	OrderStatusDelivered,
}

// Next returns the single state reachable from s. Delivered has none.
func (s OrderStatus) Next() (OrderStatus, bool) {
	for i, st := range statusFlow {
		if st == s && i+1 < len(statusFlow) {
			return statusFlow[i+1], true
		}
	}
	return "", false
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	next, ok := s.Next()
	return ok && next == target
}

func (s OrderStatus) IsValid() bool {
	for _, st := range statusFlow {
		if st == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus accepts a status name (any case) or its ordinal 0-3.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n >= 0 && n < len(statusFlow) {
			return statusFlow[n], nil
		}
		return "", Validation("invalid order status %q", raw)
	}
	for _, st := range statusFlow {
		if strings.EqualFold(string(st), raw) {
			return st, nil
		}
	}
	return "", Validation("invalid order status %q", raw)
}
