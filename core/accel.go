package core

import (
	"pkt.systems/pslog"
	"pkt.systems/termbridge/schema"
)

// accelState tracks a tab's hold on the accelerated rendering context.
//
//	accelUnacquired -> accelAcquiring  tab became active, not downgraded
//	accelAcquiring  -> accelHeld       acquisition succeeded
//	accelAcquiring  -> accelUnacquired acquisition failed (sets downgrade),
//	                                   or the context was revoked mid-flight
//	accelHeld       -> accelUnacquired tab inactive or context lost
type accelState int

const (
	accelUnacquired accelState = iota
	accelAcquiring
	accelHeld
)

// arbiter owns exclusive access to the accelerated rendering context. At most
// one tab holds the context at any instant; acquisition failure flips a
// one-way downgrade flag so no tab tries again for the rest of the run.
// External context loss releases but never downgrades.
//
// Bookkeeping runs under the service lock. The surface calls themselves
// (ReleaseAccel, AcquireAccel) are returned to the caller to run after the
// unlock, since a surface may call back into the service during them.
type arbiter struct {
	downgradeOnFailure bool
	downgraded         bool
	logger             pslog.Logger
}

// activate plans handing the context to target: every other holder is marked
// released, and target is marked acquiring when eligible. Returns the
// surfaces whose ReleaseAccel the caller must invoke unlocked, and the tab
// whose acquisition the caller completes with finish. A nil target (no
// terminal tab active) just releases all holders.
func (a *arbiter) activate(target *tab, all []*tab) (releases []Surface, acquire *tab) {
	for _, t := range all {
		if t == target {
			continue
		}
		if surface := a.release(t); surface != nil {
			releases = append(releases, surface)
		}
	}
	if target == nil || target.kind() != schema.TabTerminal || target.surface == nil {
		return releases, nil
	}
	if target.accel != accelUnacquired || a.downgraded {
		return releases, nil
	}
	target.accel = accelAcquiring
	return releases, target
}

// release marks t's hold returned and reports the surface whose ReleaseAccel
// call the caller must run unlocked, if any.
func (a *arbiter) release(t *tab) Surface {
	if t == nil || t.accel != accelHeld {
		return nil
	}
	t.accel = accelUnacquired
	a.logger.Debug("accel released", "tab", t.ID)
	return t.surface
}

// finish records the outcome of an acquisition started by activate. A
// revocation that raced the acquisition wins: the tab stays unacquired.
func (a *arbiter) finish(t *tab, err error) {
	if err != nil {
		t.accel = accelUnacquired
		if a.downgradeOnFailure {
			a.downgraded = true
		}
		a.logger.Warn("accel acquisition failed", "tab", t.ID, "downgraded", a.downgraded, "err", err)
		return
	}
	if t.accel != accelAcquiring {
		return
	}
	t.accel = accelHeld
	a.logger.Debug("accel acquired", "tab", t.ID)
}

// lost records an external revocation. The context is gone already, so only
// the bookkeeping changes; other tabs may still acquire fresh contexts.
func (a *arbiter) lost(t *tab) {
	if t == nil || t.accel == accelUnacquired {
		return
	}
	t.accel = accelUnacquired
	a.logger.Info("accel context lost", "tab", t.ID)
}
