package models

// EventType names a streamed session event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventProduct  EventType = "product"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one message on a session stream. Data holds one of
// ProgressData, Product, ErrorData or DoneData.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// ProgressData reports liveness of a running session.
type ProgressData struct {
	Message   string `json:"message"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ErrorData reports a failure. Site is empty and Fatal set for session-level
// failures; everything else is scoped to one site.
type ErrorData struct {
	Site    string `json:"site"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// DoneData is the terminal event payload.
type DoneData struct {
	TotalSitesProcessed int `json:"totalSitesProcessed"`
	Products            int `json:"products"`
}

func NewProgressEvent(message string, completed, total int) Event {
	return Event{Type: EventProgress, Data: ProgressData{Message: message, Completed: completed, Total: total}}
}

func NewProductEvent(p Product) Event {
	return Event{Type: EventProduct, Data: p}
}

// NewErrorEvent builds a site-scoped error event from err.
func NewErrorEvent(site string, err error) Event {
	return Event{Type: EventError, Data: ErrorData{Site: site, Message: err.Error(), Code: CodeOf(err)}}
}

// NewFatalEvent builds the session-level error event.
func NewFatalEvent(err error) Event {
	return Event{Type: EventError, Data: ErrorData{Message: err.Error(), Code: CodeOf(err), Fatal: true}}
}

func NewDoneEvent(sites, products int) Event {
	return Event{Type: EventDone, Data: DoneData{TotalSitesProcessed: sites, Products: products}}
}
