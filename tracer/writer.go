package tracer

// Writer hands finished traces to a backend.
type Writer interface {
	Write(spans []*Span)
	Start()
	Close()
	IncrementTraceCount()
}

type Writers struct {
	writers []Writer
}

func (ws *Writers) Write(spans []*Span) {
	for _, w := range ws.writers {
		w.Write(spans)
	}
}

func (ws *Writers) Start() {
	for _, w := range ws.writers {
		w.Start()
	}
}

func (ws *Writers) Close() {
	for _, w := range ws.writers {
		w.Close()
	}
}

func (ws *Writers) IncrementTraceCount() {
	for _, w := range ws.writers {
		w.IncrementTraceCount()
	}
}

func (ws *Writers) Len() int {
	return len(ws.writers)
}

func (ws *Writers) Register(w Writer) {
	if ws != nil && w != nil {
		ws.writers = append(ws.writers, w)
	}
}

func NewWriters() *Writers {
	return &Writers{}
}
