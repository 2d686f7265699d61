package models

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusInProgress OrderStatus = "in_progress"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// AllStatuses in dashboard column order
var AllStatuses = []OrderStatus{StatusNew, StatusInProgress, StatusCompleted, StatusCancelled}

// allowedTransitions -> strict table; completed and cancelled are terminal
var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusNew:        {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.TrimSpace(s))
	if !status.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Label() string {
	switch s {
	case StatusNew:
		return "New Order"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}
