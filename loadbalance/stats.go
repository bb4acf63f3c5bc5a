package loadbalance

// ActiveCounter reports the number of in-flight calls to an instance for
// a given method. It is maintained outside this package — the client
// increments around each RPC — and only read here, once per candidate
// per selection.
type ActiveCounter interface {
	Get(addr, method string) int
}
