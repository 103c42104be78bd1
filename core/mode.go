package core

import (
	"context"
	"errors"

	"pkt.systems/termbridge/internal/logx"
	"pkt.systems/termbridge/schema"
)

func (s *service) SetMode(ctx context.Context, req schema.SetModeRequest) (schema.SetModeResponse, error) {
	if ctx == nil {
		return schema.SetModeResponse{}, errors.New("missing context")
	}
	if !schema.ValidMode(req.Mode) {
		return schema.SetModeResponse{}, schema.ErrInvalidMode
	}
	log := logx.Ctx(ctx)

	s.mu.Lock()
	if s.mode == req.Mode {
		mode := s.mode
		s.mu.Unlock()
		return schema.SetModeResponse{Mode: mode, Changed: false}, nil
	}
	s.mode = req.Mode
	workspace := s.current
	s.mu.Unlock()

	var ensurePending bool
	if req.Mode == schema.ModeTerminal && workspace != "" {
		resp, err := s.Ensure(ctx, schema.EnsureRequest{Workspace: workspace})
		if err != nil {
			log.Warn("bridge mode ensure failed", "mode", req.Mode, "err", err)
		} else {
			ensurePending = resp.Pending
		}
	}
	s.scheduleRefit()

	if s.sink != nil {
		s.sink.OnMode(schema.ModeEvent{Mode: req.Mode, Workspace: workspace})
	}
	log.Info("bridge mode changed", "mode", req.Mode, "workspace", workspace, "spawn_pending", ensurePending)
	return schema.SetModeResponse{Mode: req.Mode, Changed: true}, nil
}

// scheduleRefit queues one surface refit after the layout settles. A refit
// already queued from an earlier transition is replaced, not stacked.
func (s *service) scheduleRefit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var surface Surface
	if t, _ := s.activeSessionLocked(); t != nil {
		surface = t.surface
	} else if t := s.terminalTabLocked(s.current); t != nil {
		surface = t.surface
	}
	if s.refit != nil {
		s.refit.Stop()
		s.refit = nil
	}
	if surface == nil {
		return
	}
	s.refit = settleAfter(s.cfg.LayoutSettleDelay, surface.Fit)
}
