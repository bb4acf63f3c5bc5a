package loadbalance

import (
	"testing"

	"balance-rpc/registry"
	"balance-rpc/stats"
)

// mapCounter is a fixed ActiveCounter for tests.
type mapCounter map[string]int

func (m mapCounter) Get(addr, method string) int {
	return m[addr]
}

func TestLeastActivePicksIdle(t *testing.T) {
	instances := []registry.ServiceInstance{
		{Addr: "127.0.0.1:8001", Weight: 5},
		{Addr: "127.0.0.1:8002", Weight: 5},
		{Addr: "127.0.0.1:8003", Weight: 5},
	}
	b := NewLeastActiveBalancer(mapCounter{
		"127.0.0.1:8001": 3,
		"127.0.0.1:8002": 0,
		"127.0.0.1:8003": 3,
	})
	target := Target{ServiceKey: "Arith"}
	inv := &Invocation{Method: "Add"}

	// A strict minimum is always selected
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(instances, target, inv)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != "127.0.0.1:8002" {
			t.Fatalf("expect the idle instance, got %s", inst.Addr)
		}
	}
}

func TestLeastActiveWeightedTieBreak(t *testing.T) {
	instances := []registry.ServiceInstance{
		{Addr: "127.0.0.1:8001", Weight: 9},
		{Addr: "127.0.0.1:8002", Weight: 1},
		{Addr: "127.0.0.1:8003", Weight: 5},
	}
	// 8001 and 8002 tie on the minimum; 8003 is busy and out of the running
	b := NewLeastActiveBalancer(mapCounter{
		"127.0.0.1:8001": 1,
		"127.0.0.1:8002": 1,
		"127.0.0.1:8003": 4,
	})
	target := Target{ServiceKey: "Arith"}
	inv := &Invocation{Method: "Add"}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(instances, target, inv)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	if counts["127.0.0.1:8003"] != 0 {
		t.Fatalf("busy instance picked %d times, expect 0", counts["127.0.0.1:8003"])
	}
	// 9:1 weighted split among the tied pair
	if c := counts["127.0.0.1:8001"]; c < 8500 || c > 9400 {
		t.Fatalf("weight-9 instance picked %d times, expect ~9000", c)
	}
	if c := counts["127.0.0.1:8002"]; c < 600 || c > 1500 {
		t.Fatalf("weight-1 instance picked %d times, expect ~1000", c)
	}
}

func TestLeastActiveUniformTieBreak(t *testing.T) {
	instances := []registry.ServiceInstance{
		{Addr: "127.0.0.1:8001"},
		{Addr: "127.0.0.1:8002"},
	}
	b := NewLeastActiveBalancer(mapCounter{})
	target := Target{ServiceKey: "Arith"}
	inv := &Invocation{Method: "Add"}

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		inst, err := b.Pick(instances, target, inv)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}
	for addr, c := range counts {
		if c < 800 || c > 1200 {
			t.Fatalf("%s picked %d times, expect ~1000", addr, c)
		}
	}
}

func TestLeastActiveWithInFlightCounter(t *testing.T) {
	// Wired to the real stats counter: marking one instance busy
	// steers every pick to the other
	counter := stats.New()
	instances := []registry.ServiceInstance{
		{Addr: "127.0.0.1:8001"},
		{Addr: "127.0.0.1:8002"},
	}
	b := NewLeastActiveBalancer(counter)
	target := Target{ServiceKey: "Arith"}
	inv := &Invocation{Method: "Add"}

	counter.Begin("127.0.0.1:8001", "Add")
	for i := 0; i < 50; i++ {
		inst, err := b.Pick(instances, target, inv)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != "127.0.0.1:8002" {
			t.Fatalf("expect the idle instance, got %s", inst.Addr)
		}
	}
	counter.End("127.0.0.1:8001", "Add")

	if got := counter.Get("127.0.0.1:8001", "Add"); got != 0 {
		t.Fatalf("expect drained counter, got %d", got)
	}
}

func TestLeastActiveEmpty(t *testing.T) {
	b := NewLeastActiveBalancer(nil)
	if _, err := b.Pick(nil, Target{ServiceKey: "Arith"}, &Invocation{Method: "Add"}); err == nil {
		t.Fatal("expect error for empty instances")
	}
}
