package http

import (
	"sync"
	"time"

	"github.com/toshi-app/toshi-client/internal/txservice"
)

// Event is something the UI shell should react to: an alert, a spinner,
// a navigation.
type Event struct {
	Kind     string             `json:"kind"`
	Address  string             `json:"address,omitempty"`
	Params   txservice.Params   `json:"parameters,omitempty"`
	Response txservice.Response `json:"response,omitempty"`
	Error    string             `json:"error,omitempty"`
	At       time.Time          `json:"at"`
}

const (
	EventShowActivity       = "show_activity"
	EventHideActivity       = "hide_activity"
	EventStartScanning      = "start_scanning"
	EventOpenPaymentMessage = "open_payment_message"
	EventPaymentSuccess     = "payment_success"
	EventPaymentError       = "payment_error"
	EventDisplayMessage     = "display_message"
	EventPresentQRCode      = "present_qr_code"
)

const maxEvents = 256

// Events queues UI events until the shell polls them. It is the presenter
// of the scan flow and the navigator of profile screens.
type Events struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func NewEvents() *Events {
	return &Events{now: time.Now}
}

func (e *Events) push(ev Event) {
	ev.At = e.now().UTC()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == maxEvents {
		e.events = e.events[1:]
	}
	e.events = append(e.events, ev)
}

// Drain returns queued events oldest first and clears the queue.
func (e *Events) Drain() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	if out == nil {
		out = []Event{}
	}
	return out
}

func (e *Events) ShowActivity()  { e.push(Event{Kind: EventShowActivity}) }
func (e *Events) HideActivity()  { e.push(Event{Kind: EventHideActivity}) }
func (e *Events) StartScanning() { e.push(Event{Kind: EventStartScanning}) }

func (e *Events) OpenPaymentMessage(address string, params txservice.Params) {
	e.push(Event{Kind: EventOpenPaymentMessage, Address: address, Params: params})
}

func (e *Events) PresentSuccess(resp txservice.Response) {
	e.push(Event{Kind: EventPaymentSuccess, Response: resp})
}

func (e *Events) PresentError(err error, resp txservice.Response) {
	ev := Event{Kind: EventPaymentError, Response: resp}
	if msg, ok := resp.Message(); ok {
		ev.Error = msg
	} else if err != nil {
		ev.Error = err.Error()
	}
	e.push(ev)
}

func (e *Events) DisplayMessage(address string) {
	e.push(Event{Kind: EventDisplayMessage, Address: address})
}

func (e *Events) PresentQRCode(address string) {
	e.push(Event{Kind: EventPresentQRCode, Address: address})
}
