package core

import "pkt.systems/termbridge/schema"

// EventSink receives bridge events destined for the host shell.
type EventSink interface {
	OnReady(event schema.ReadyEvent)
	OnError(event schema.ErrorEvent)
	OnClosed(event schema.ClosedEvent)
	OnMode(event schema.ModeEvent)
}
