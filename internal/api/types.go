package api

import (
	"context"

	"github.com/nikicat/extimer-bridge/internal/extension"
	"github.com/nikicat/extimer-bridge/internal/timer"
)

// Extension is the view of the capabilities service the API needs.
type Extension interface {
	Status() extension.Status
	Initialized() bool
	Capabilities() []string
	Subscribe(kind extension.EventKind, handler func(extension.Event)) extension.SubscriptionID
	Unsubscribe(id extension.SubscriptionID)
}

// Timer is the view of the timer proxy the API needs.
type Timer interface {
	timer.Client
	Snapshot(ctx context.Context) (timer.Snapshot, error)
	Watch(ctx context.Context, fn func(timer.Change)) error
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Status       string   `json:"status"`
	Initialized  bool     `json:"initialized"`
	Capabilities []string `json:"capabilities"`
}

// CallRequest is the optional body of POST /api/v1/timer/{method}.
type CallRequest struct {
	Args []string `json:"args"`
}

// ActionResponse is returned by the timer call endpoint.
type ActionResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusOf(ext Extension) StatusResponse {
	return StatusResponse{
		Status:       ext.Status().String(),
		Initialized:  ext.Initialized(),
		Capabilities: ext.Capabilities(),
	}
}
