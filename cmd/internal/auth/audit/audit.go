// Package audit records security-relevant auth events.
//
// Sinks never fail the caller: errors are logged and dropped.
package audit

import (
	"context"
	"net"
	"time"
)

// Actions recorded by the session manager.
const (
	ActionRegister       = "auth.register"
	ActionLoginSuccess   = "auth.login.success"
	ActionLoginFailed    = "auth.login.failed"
	ActionRefreshSuccess = "auth.refresh.success"
	ActionRefreshFailed  = "auth.refresh.failed"
	ActionLogout         = "auth.logout"
)

// recordTimeout bounds a single sink write.
const recordTimeout = 3 * time.Second

// Event is one audit record. Meta must never contain secrets.
type Event struct {
	Action    string         `json:"action"`
	AccountID string         `json:"accountId,omitempty"`
	IP        net.IP         `json:"ip,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	At        time.Time      `json:"at"`
}

// Sink accepts audit events.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, ev)
		}
	}
}

// detach keeps the write alive after the request context is canceled.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}
