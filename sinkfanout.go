package termbridge

import (
	"pkt.systems/termbridge/core"
	"pkt.systems/termbridge/schema"
)

type sinkFanout struct {
	sinks []core.EventSink
}

func (f sinkFanout) OnReady(event schema.ReadyEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnReady(event)
	}
}

func (f sinkFanout) OnError(event schema.ErrorEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnError(event)
	}
}

func (f sinkFanout) OnClosed(event schema.ClosedEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnClosed(event)
	}
}

func (f sinkFanout) OnMode(event schema.ModeEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnMode(event)
	}
}
