// Package scanner turns scanned payment requests into submitted transactions.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/toshi-app/toshi-client/internal/txservice"
)

type State int

const (
	Scanning State = iota
	Processing
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Processing:
		return "processing"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Status int

const (
	StatusDecodeFailed Status = iota
	StatusAwaitingApproval
	StatusLocalHandoff
	StatusCreateFailed
	StatusSignFailed
	StatusSubmitFailed
	StatusSubmitted
	StatusDeclined
)

func (s Status) String() string {
	switch s {
	case StatusDecodeFailed:
		return "decode_failed"
	case StatusAwaitingApproval:
		return "awaiting_approval"
	case StatusLocalHandoff:
		return "local_handoff"
	case StatusCreateFailed:
		return "create_failed"
	case StatusSignFailed:
		return "sign_failed"
	case StatusSubmitFailed:
		return "submit_failed"
	case StatusSubmitted:
		return "submitted"
	case StatusDeclined:
		return "declined"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome is the explicit result of one step of the flow. Whether a failure
// is shown to the user is decided by the flow, not by the caller.
type Outcome struct {
	Status   Status             `json:"status"`
	Request  *Request           `json:"request,omitempty"`
	Response txservice.Response `json:"response,omitempty"`
	Err      error              `json:"-"`
}

var (
	// ErrBusy is returned when the flow is not in a state that accepts the call.
	ErrBusy = errors.New("scanner: a payment is already in progress")
	// ErrNothingPending is returned by Approve without a captured request.
	ErrNothingPending = errors.New("scanner: no payment request to approve")
)

type Signer interface {
	SignTransaction(txHex string) (string, error)
}

// Presenter is the UI around the scanner.
type Presenter interface {
	ShowActivity()
	HideActivity()
	StartScanning()
	OpenPaymentMessage(address string, params txservice.Params)
	PresentSuccess(resp txservice.Response)
	PresentError(err error, resp txservice.Response)
}

type Deps struct {
	Decoder      Decoder
	Transactions txservice.Service
	Signer       Signer
	Presenter    Presenter
}

// Flow runs at most one payment at a time. The state lock is never held
// while a service is called.
type Flow struct {
	deps Deps

	mu       sync.Mutex
	state    State
	pending  *Request
	inFlight bool
}

func NewFlow(deps Deps) (*Flow, error) {
	if deps.Decoder == nil || deps.Transactions == nil || deps.Signer == nil || deps.Presenter == nil {
		return nil, errors.New("scanner: decoder, transactions, signer and presenter are required")
	}
	return &Flow{deps: deps, state: Scanning}, nil
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Pending returns the captured request awaiting approval, if any.
func (f *Flow) Pending() (Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return Request{}, false
	}
	return *f.pending, true
}

// Capture decodes a scanned payload. Payloads that are not payment requests
// leave the flow scanning. A decoded request moves the flow to Processing,
// where it waits for Approve or Decline.
func (f *Flow) Capture(payload string) (Outcome, error) {
	if f.State() != Scanning {
		return Outcome{}, ErrBusy
	}

	req, err := f.deps.Decoder.Decode(payload)
	if err != nil {
		log.Info("ignoring scanned payload", "error", err)
		return Outcome{Status: StatusDecodeFailed, Err: err}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Another capture may have won while this one was decoding.
	if f.state != Scanning {
		return Outcome{}, ErrBusy
	}
	f.state = Processing
	f.pending = &req
	return Outcome{Status: StatusAwaitingApproval, Request: &req}, nil
}

// Approve carries out the pending request. Payments to the local user are
// handed off to the payment composer without touching any service.
func (f *Flow) Approve(ctx context.Context) (Outcome, error) {
	f.mu.Lock()
	if f.state != Processing || f.inFlight {
		f.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	if f.pending == nil {
		f.mu.Unlock()
		return Outcome{}, ErrNothingPending
	}
	req := *f.pending
	f.pending = nil

	if req.UserInfo.IsLocal {
		f.state = Scanning
		f.mu.Unlock()
		f.deps.Presenter.OpenPaymentMessage(req.UserInfo.Address, req.Params)
		return Outcome{Status: StatusLocalHandoff, Request: &req}, nil
	}

	f.inFlight = true
	f.mu.Unlock()

	out := f.submit(ctx, req)

	f.mu.Lock()
	f.inFlight = false
	switch out.Status {
	case StatusSubmitted:
		f.state = Success
	case StatusCreateFailed:
		f.state = Scanning
	default:
		f.state = Failed
	}
	f.mu.Unlock()

	switch out.Status {
	case StatusSubmitted:
		f.deps.Presenter.PresentSuccess(out.Response)
	case StatusCreateFailed:
		f.deps.Presenter.StartScanning()
	default:
		f.deps.Presenter.PresentError(out.Err, out.Response)
	}
	return out, nil
}

func (f *Flow) submit(ctx context.Context, req Request) Outcome {
	p := f.deps.Presenter
	p.ShowActivity()

	unsigned, err := f.deps.Transactions.CreateUnsignedTransaction(ctx, req.Params)
	if err != nil {
		p.HideActivity()
		log.Warn("create unsigned transaction failed", "to", req.UserInfo.Address, "error", err)
		return Outcome{Status: StatusCreateFailed, Request: &req, Err: err}
	}

	sig, err := f.deps.Signer.SignTransaction(unsigned)
	if err != nil {
		p.HideActivity()
		log.Error("sign transaction failed", "to", req.UserInfo.Address, "error", err)
		return Outcome{Status: StatusSignFailed, Request: &req, Err: err}
	}

	resp, err := f.deps.Transactions.SendSignedTransaction(ctx, unsigned, "0x"+sig)
	p.HideActivity()
	if err != nil {
		log.Warn("send signed transaction failed", "to", req.UserInfo.Address, "error", err)
		return Outcome{Status: StatusSubmitFailed, Request: &req, Response: resp, Err: err}
	}

	log.Info("payment submitted", "to", req.UserInfo.Address)
	return Outcome{Status: StatusSubmitted, Request: &req, Response: resp}
}

// Dismiss closes the success or error alert and resumes scanning.
func (f *Flow) Dismiss() error {
	f.mu.Lock()
	if f.state != Success && f.state != Failed {
		f.mu.Unlock()
		return ErrBusy
	}
	f.state = Scanning
	f.mu.Unlock()

	f.deps.Presenter.StartScanning()
	return nil
}

// Decline rejects the pending request before anything is submitted.
func (f *Flow) Decline() (Outcome, error) {
	f.mu.Lock()
	if f.state != Processing || f.inFlight {
		f.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	req := f.pending
	f.pending = nil
	f.state = Scanning
	f.mu.Unlock()

	f.deps.Presenter.StartScanning()
	return Outcome{Status: StatusDeclined, Request: req}, nil
}

// PaymentFailed is reported by the confirmation screen when it could not
// complete the payment itself. The flow goes back to scanning.
func (f *Flow) PaymentFailed(err error, result txservice.Response) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return
	}
	f.pending = nil
	f.state = Scanning
	f.mu.Unlock()

	log.Warn("payment failed", "error", err, "result", result)
	f.deps.Presenter.StartScanning()
}
