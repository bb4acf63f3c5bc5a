package loadbalance

import (
	"crypto/md5"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"

	"balance-rpc/registry"
)

// DefaultHashNodes is the number of virtual nodes placed on the ring per
// real instance when no "hash.nodes" option is set.
const DefaultHashNodes = 160

// ErrHashNodes reports a "hash.nodes" option that is not a positive
// multiple of 4. The ring derives four points from every MD5 digest, so
// other values cannot be honored exactly.
var ErrHashNodes = errors.New("loadbalance: hash.nodes must be a positive multiple of 4")

// ConsistentHashBalancer maps invocations with equal hash keys to the
// same instance, stable under unrelated instance churn: when one instance
// leaves, only the keys it owned re-map, spread across the survivors
// rather than dumped on a single neighbor.
//
// Virtual nodes: each real instance is placed on the ring hash.nodes
// times. Without them a handful of instances would cluster, skewing load;
// 160 points per instance gives statistical spread.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
//
// Per (service, method) the balancer keeps an immutable selector holding
// the ring. A selector is rebuilt off to the side and republished
// atomically whenever the candidate set's address fingerprint changes;
// concurrent picks see either the old or the new ring, never a partial
// one. Concurrent rebuilds may race — last publish wins, both rings are
// equivalent for equal candidate sets.
type ConsistentHashBalancer struct {
	selectors sync.Map // stateKey → *hashSelector
}

// NewConsistentHashBalancer creates the consistent-hash policy.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{}
}

// Pick routes the invocation to the ring owner of its hash key,
// rebuilding the per-method ring first if the candidate set changed.
func (b *ConsistentHashBalancer) Pick(instances []registry.ServiceInstance, target Target, inv *Invocation) (*registry.ServiceInstance, error) {
	n := len(instances)
	if n == 0 {
		return nil, ErrNoInstances
	}

	key := stateKey(target, inv)
	id := fingerprint(instances)

	var sel *hashSelector
	if v, ok := b.selectors.Load(key); ok {
		sel = v.(*hashSelector)
	}
	if sel == nil || sel.identity != id {
		fresh, err := newHashSelector(instances, inv.Method, id)
		if err != nil {
			return nil, err
		}
		b.selectors.Store(key, fresh)
		sel = fresh
	}
	return sel.pick(inv), nil
}

func (b *ConsistentHashBalancer) Name() string {
	return ConsistentHash
}

// fingerprint is a cheap stable signature of the ordered address list,
// used to detect candidate-set changes. Equal sets delivered as fresh
// slices hash identically and do not force a rebuild; any reorder,
// addition or removal does.
func fingerprint(instances []registry.ServiceInstance) uint64 {
	h := fnv.New64a()
	for i := range instances {
		h.Write([]byte(instances[i].Addr))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// hashSelector is an immutable snapshot: the sorted ring, the candidate
// fingerprint it was built from, and the hashing options resolved at
// build time.
type hashSelector struct {
	keys     []uint64                             // Sorted ring point hashes
	ring     map[uint64]*registry.ServiceInstance // Ring point → instance
	identity uint64                               // Candidate fingerprint this ring was built from
	replicas int                                  // Virtual nodes per instance
	argIdx   []int                                // Invocation argument indices hashed into the key
}

// newHashSelector builds the ring: per instance, replicas/4 MD5 digests
// of addr+i, four 32-bit ring points per digest. One digest feeding four
// points amortizes the hash cost; the byte groups of an MD5 digest are
// independently well distributed.
func newHashSelector(instances []registry.ServiceInstance, method string, identity uint64) (*hashSelector, error) {
	first := &instances[0]
	replicas := first.MethodIntParam(method, "hash.nodes", DefaultHashNodes)
	if replicas <= 0 || replicas%4 != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrHashNodes, replicas)
	}

	sel := &hashSelector{
		ring:     make(map[uint64]*registry.ServiceInstance, len(instances)*replicas),
		identity: identity,
		replicas: replicas,
		argIdx:   parseArgIndexes(first.MethodParam(method, "hash.arguments", "0")),
	}

	for i := range instances {
		// The selector outlives this call; give it its own copy rather
		// than a pointer into the caller's slice.
		inst := instances[i]
		for j := 0; j < replicas/4; j++ {
			digest := md5.Sum([]byte(inst.Addr + strconv.Itoa(j)))
			for h := 0; h < 4; h++ {
				sel.ring[ringPoint(digest, h)] = &inst
			}
		}
	}

	// Collect and sort the point hashes for binary search in pick().
	// Collecting from the map means a (vanishingly rare) 32-bit collision
	// keeps the last-written owner rather than a duplicate key.
	sel.keys = make([]uint64, 0, len(sel.ring))
	for k := range sel.ring {
		sel.keys = append(sel.keys, k)
	}
	sort.Slice(sel.keys, func(a, b int) bool { return sel.keys[a] < sel.keys[b] })

	return sel, nil
}

// ringPoint extracts the h-th 32-bit ring point from an MD5 digest:
// bytes 4h..4h+3 assembled high-byte-last. Stored in 64 bits so ring
// arithmetic never wraps.
func ringPoint(digest [md5.Size]byte, h int) uint64 {
	return uint64(digest[4*h+3])<<24 |
		uint64(digest[4*h+2])<<16 |
		uint64(digest[4*h+1])<<8 |
		uint64(digest[4*h])
}

// pick hashes the invocation's key material and walks clockwise to the
// first ring point at or past it, wrapping to the ring's first point.
func (s *hashSelector) pick(inv *Invocation) *registry.ServiceInstance {
	digest := md5.Sum([]byte(s.hashKey(inv)))
	hash := ringPoint(digest, 0)

	idx := sort.Search(len(s.keys), func(i int) bool {
		return s.keys[i] >= hash
	})
	if idx == len(s.keys) {
		idx = 0
	}
	return s.ring[s.keys[idx]]
}

// hashKey concatenates the string form of the invocation arguments at the
// configured indices, no separator. A "hash.key" metadata attachment overrides the
// derivation entirely, letting a caller pin affinity explicitly.
func (s *hashSelector) hashKey(inv *Invocation) string {
	if k, ok := inv.Metadata["hash.key"]; ok && k != "" {
		return k
	}
	var sb strings.Builder
	for _, i := range s.argIdx {
		if i >= 0 && i < len(inv.Args) {
			fmt.Fprint(&sb, inv.Args[i])
		}
	}
	return sb.String()
}

// parseArgIndexes parses the comma-separated "hash.arguments" option.
// Entries that are not integers are skipped.
func parseArgIndexes(v string) []int {
	parts := strings.Split(v, ",")
	idx := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		idx = append(idx, n)
	}
	return idx
}
