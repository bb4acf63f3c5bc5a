package loadbalance

import (
	"time"

	"balance-rpc/registry"
)

// DefaultWarmupMs is the warm-up window applied when an instance carries
// no "warmup" option: 10 minutes.
const DefaultWarmupMs = 10 * 60 * 1000

// nowMs returns the current wall clock in epoch millis.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// effectiveWeight computes the scheduling weight of an instance at
// selection time.
//
// The base weight is inst.MethodWeight: the per-method "weight" option,
// else the registered Weight, else 100.
// A non-positive base is returned as-is — the weighted policies treat it
// as "excluded". Inside the warm-up window the weight ramps linearly:
// an instance that has been up for uptime out of warmup millis gets
// uptime/(warmup/weight), clamped to [1, weight], so a just-started
// instance receives roughly 1/weight of its steady share and reaches the
// full share at uptime == warmup. A "warmup" option of 0 disables the ramp.
func effectiveWeight(inst *registry.ServiceInstance, inv *Invocation) int {
	w := inst.MethodWeight(inv.Method)
	if w <= 0 {
		return w
	}
	ts := inst.StartTimeMs
	if ts <= 0 {
		return w
	}
	uptime := nowMs() - ts
	if uptime <= 0 {
		return w
	}
	warmup := inst.MethodIntParam(inv.Method, "warmup", DefaultWarmupMs)
	if warmup <= 0 || uptime >= int64(warmup) {
		return w
	}
	ww := int(float64(uptime) / (float64(warmup) / float64(w)))
	if ww < 1 {
		return 1
	}
	if ww > w {
		return w
	}
	return ww
}

// positiveWeight is effectiveWeight floored at 0 for accumulation in
// weighted sums: an excluded instance contributes nothing instead of
// corrupting the total.
func positiveWeight(inst *registry.ServiceInstance, inv *Invocation) int {
	if w := effectiveWeight(inst, inv); w > 0 {
		return w
	}
	return 0
}
