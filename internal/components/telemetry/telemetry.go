package telemetry

// API is what every component reports its logs and counters through, so tests
// can assert on them with a Recorder.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that failed in a way that needs attention.
	//
	// The id names the component and method that broke, ex. `reconciler.upsert-vote`,
	// never the exact line. The session, politician or error that caused it goes
	// into params. Ids are lowercase, use underscores inside a component name and
	// dashes inside a method name. Ids are declared as `report_...` constants
	// next to the code that uses them.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unusual that is not necessarily broken,
	// ids follow the same rules as ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports information that is only useful while debugging.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the value of a counter at the current time, reports
	// are points on a graph and must not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id (and debug message) with a namespace. Scopes nest,
// scoping an already scoped API joins the namespaces with a dot.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	if parent, ok := inner.(ScopedAPI); ok {
		return ScopedAPI{namespace: parent.namespace + "." + namespace, inner: parent.inner}
	}
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scope(id string) string {
	return s.namespace + ": " + id
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scope(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scope(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scope(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scope(id), count)
}

// Discard drops every report.
type Discard struct{}

func (Discard) ReportBroken(string, ...any)  {}
func (Discard) ReportWarning(string, ...any) {}
func (Discard) ReportDebug(string, ...any)   {}
func (Discard) ReportCount(string, int64)    {}
