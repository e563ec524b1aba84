package cnst

// Tracer names used across the packages
const (
	// TraceSession is the tracer name for the authenticated request client
	TraceSession = "tether/session"
	// TraceConnection is the tracer name for the persistent connection manager
	TraceConnection = "tether/connection"
)

// Span names
const (
	SpanRequest = "session.request"
	SpanRefresh = "session.refresh"
	SpanReplay  = "session.replay"
	SpanLogin   = "session.login"
	SpanDial    = "connection.dial"
)
