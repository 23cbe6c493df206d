package common

type TracerSpanContext interface {
	GetTraceID() TraceID
	GetSpanID() uint64
}

type TracerSpan interface {
	GetContext() TracerSpanContext
	Error(err error)
}
