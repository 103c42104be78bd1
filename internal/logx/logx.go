package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/termbridge/schema"
)

type contextKey int

const (
	tabKey contextKey = iota
	workspaceKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithTab annotates the logger with the tab id if present.
func WithTab(ctx context.Context, tabID schema.TabID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", tabID)
	}
	return log
}

// WithWorkspace annotates the logger with a workspace key when available.
func WithWorkspace(ctx context.Context, key schema.WorkspaceKey) pslog.Logger {
	log := pslog.Ctx(ctx)
	if key != "" {
		if current, ok := ctx.Value(workspaceKey).(schema.WorkspaceKey); ok && current == key {
			return log
		}
		log = log.With("workspace", key)
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == "" {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithWorkspace stores the workspace marker on the context for log
// de-duplication.
func ContextWithWorkspace(ctx context.Context, key schema.WorkspaceKey) context.Context {
	if ctx == nil || key == "" {
		return ctx
	}
	return context.WithValue(ctx, workspaceKey, key)
}

// ContextWithTabLogger attaches the logger and tab marker to the context.
func ContextWithTabLogger(ctx context.Context, log pslog.Logger, tabID schema.TabID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ctx, tabID)
}
