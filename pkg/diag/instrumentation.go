// instrumentation.go defines the host capabilities the engine observes and
// the tagged operation type used by Measure.

package diag

import "strings"

// InstrumentationSource is implemented by a host adapter that can observe
// long-running work and the startup of the initial route. Outbound request
// interception is not part of it: wrap the application's HTTP client with
// Engine.Transport instead.
type InstrumentationSource interface {
	// OnLongTask calls fn for every observed long task until stop is called.
	OnLongTask(fn func(LongTask)) (stop func(), err error)

	// OnNavigationTiming calls fn with the timing of the initial route.
	OnNavigationTiming(fn func(NavigationTiming)) (stop func(), err error)
}

// ConnectivitySource reports online/offline transitions.
type ConnectivitySource interface {
	OnConnectivityChange(fn func(online bool)) (stop func(), err error)
}

// OperationKind selects the bucket a measured operation is recorded in.
type OperationKind int

const (
	KindAPI OperationKind = iota + 1
	KindComponent
	KindPage
)

func (k OperationKind) String() string {
	switch k {
	case KindAPI:
		return "api"
	case KindComponent:
		return "component"
	case KindPage:
		return "page"
	}
	return "unknown"
}

// Operation names a measured unit of work.
type Operation struct {
	Kind OperationKind
	Name string
}

// APIOperation, ComponentOperation and PageOperation build tagged operations.
func APIOperation(name string) Operation       { return Operation{Kind: KindAPI, Name: name} }
func ComponentOperation(name string) Operation { return Operation{Kind: KindComponent, Name: name} }
func PageOperation(name string) Operation      { return Operation{Kind: KindPage, Name: name} }

// operationPrefixes is the routing table for string-named operations.
var operationPrefixes = []struct {
	prefix string
	kind   OperationKind
}{
	{"api:", KindAPI},
	{"component:", KindComponent},
	{"page:", KindPage},
}

// ParseOperation maps "api:<name>", "component:<name>" or "page:<name>" to an
// Operation. It returns false for names without a known prefix.
func ParseOperation(s string) (Operation, bool) {
	for _, route := range operationPrefixes {
		if name, ok := strings.CutPrefix(s, route.prefix); ok {
			return Operation{Kind: route.kind, Name: name}, true
		}
	}
	return Operation{}, false
}
