package fleet

import (
	"context"
	"time"
)

// Coordinator mediates between refreshes, user control commands and fleet
// discovery sweeps so they never interleave destructively on one device.
// Every state-changing operation funnels through Set.
type Coordinator struct {
	ser    *KeyedSerializer
	client DeviceClient
	sweeps sweepSignal
	events *broker
	logger Logger

	// settle is the fixed delay inserted after a discovery sweep before a
	// parked command proceeds, one discovery-polling-interval. It gives
	// freshly rediscovered handles time to settle; its correctness depends
	// on how long rediscovery takes, which this subsystem cannot verify.
	settle time.Duration

	done <-chan struct{}
}

func newCoordinator(ser *KeyedSerializer, client DeviceClient, sweeps sweepSignal,
	events *broker, logger Logger, settle time.Duration, done <-chan struct{},
) *Coordinator {
	return &Coordinator{
		ser:    ser,
		client: client,
		sweeps: sweeps,
		events: events,
		logger: logger,
		settle: settle,
		done:   done,
	}
}

// Set issues a control command for one attribute of a device or sub-device.
//
// The contract, in order:
//
//  1. Offline device or shutting-down process: logged no-op, nil error.
//  2. If an operation is in flight for this key, or a discovery sweep is
//     running, wait for whichever of the two completion events fires first.
//     If the sweep resolved the wait, additionally delay by the settle
//     interval; if polling for the device stopped meanwhile, abandon the
//     command silently.
//  3. Acquire the key, mark the device busy, issue the remote control call.
//     On success apply the optimistic local change plus any dependent
//     attribute and emit the change notifications. Waiters are released on
//     every exit path, success or failure.
//  4. A remote failure demotes the device to offline and halts polling; it
//     is logged, never propagated past the coordinator. No optimistic
//     change is applied.
//
// The only errors Set returns are internal invariant violations
// (ErrAttributeUnmapped, ErrSubDeviceUnknown) and context cancellation.
func (c *Coordinator) Set(ctx context.Context, h *Handle, subID string, attr Attribute, value any) error {
	if !h.life.Running() {
		c.logger.Info("set ignored, device not running",
			"device", h.ID(), "sub", subID, "attribute", string(attr), "phase", string(h.life.Phase()))
		return nil
	}

	key := h.SubKey(subID)

	abandoned, err := c.waitTurn(ctx, h, key)
	if err != nil {
		return err
	}
	if abandoned {
		return nil
	}

	return c.ser.Run(ctx, key, func(ctx context.Context) error {
		// Re-validate: the queue wait may have outlived the device.
		if !h.life.Running() {
			c.logger.Info("set abandoned, device stopped while queued",
				"device", h.ID(), "sub", subID, "attribute", string(attr))
			return nil
		}

		if !h.caps.Has(attr) || attr == AttrInUse {
			return ErrAttributeUnmapped
		}

		childIndex := -1
		if subID != "" {
			idx, ok := h.childIndex(subID)
			if !ok {
				return ErrSubDeviceUnknown
			}
			childIndex = idx
		}

		// Claim the in-flight registry atomically: a whole-device refresh
		// that won the race holds the whole-device entry, and issuing the
		// remote call under it would let the refresh's stale snapshot
		// overwrite the optimistic apply.
		for {
			conflict, claimed := h.claimOp(key)
			if claimed {
				break
			}
			select {
			case <-conflict:
			case <-c.done:
				c.logger.Debug("set released by shutdown", "device", h.ID())
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		defer h.endOp(key)

		if err := c.client.Control(ctx, h.Host(), attr, value, childIndex); err != nil {
			c.logger.Error("control command failed, marking device offline",
				"device", h.ID(), "sub", subID, "attribute", string(attr), "error", err)
			h.life.MarkOffline()
			if h.sync != nil {
				h.sync.Suspend()
			}
			return nil
		}

		values := map[Attribute]any{attr: NormalizeValue(value)}
		for dep, v := range h.caps.DeriveDependent(attr, value) {
			values[dep] = v
		}
		for _, change := range h.applyLocal(subID, values) {
			change.Source = SourceCommand
			c.events.publish(change)
		}

		c.logger.Debug("control command applied",
			"device", h.ID(), "sub", subID, "attribute", string(attr))
		return nil
	})
}

// waitTurn parks the command behind an in-flight operation or a running
// discovery sweep, resolving on whichever completion event fires first. It
// reports whether the command should be abandoned without error.
func (c *Coordinator) waitTurn(ctx context.Context, h *Handle, key string) (bool, error) {
	busy := h.conflictWith(key)
	sweeping, sweepCh := c.sweeps.SweepPending()
	if busy == nil && !sweeping {
		return false, nil
	}

	sweepFired := false
	select {
	case <-busy: // nil channel blocks forever when there is no conflict
	case <-sweepCh:
		sweepFired = true
	case <-c.done:
		c.logger.Debug("set released by shutdown", "device", h.ID())
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}

	if !sweepFired {
		return false, nil
	}

	// The sweep resolved the wait: let rediscovered handles settle before
	// touching the device.
	timer := time.NewTimer(c.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.done:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}

	if !h.pollingActive() {
		c.logger.Debug("set abandoned after sweep, polling stopped",
			"device", h.ID(), "key", key)
		return true, nil
	}
	return false, nil
}
