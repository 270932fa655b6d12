package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/toshi-app/toshi-client/internal/txservice"
)

var (
	localAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	remoteAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type mockService struct {
	mock.Mock
}

func (m *mockService) CreateUnsignedTransaction(ctx context.Context, params txservice.Params) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockService) SendSignedTransaction(ctx context.Context, original, signature string) (txservice.Response, error) {
	args := m.Called(ctx, original, signature)
	resp, _ := args.Get(0).(txservice.Response)
	return resp, args.Error(1)
}

type signerFunc func(string) (string, error)

func (f signerFunc) SignTransaction(tx string) (string, error) { return f(tx) }

type recorder struct {
	mu      sync.Mutex
	events  []string
	opened  []string
	errResp txservice.Response
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) ShowActivity()  { r.add("show_activity") }
func (r *recorder) HideActivity()  { r.add("hide_activity") }
func (r *recorder) StartScanning() { r.add("start_scanning") }
func (r *recorder) OpenPaymentMessage(address string, _ txservice.Params) {
	r.add("open_payment_message")
	r.opened = append(r.opened, address)
}
func (r *recorder) PresentSuccess(txservice.Response) { r.add("present_success") }
func (r *recorder) PresentError(_ error, resp txservice.Response) {
	r.add("present_error")
	r.errResp = resp
}

func (r *recorder) count(e string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.events {
		if got == e {
			n++
		}
	}
	return n
}

func newFlow(t *testing.T, svc txservice.Service, sign Signer) (*Flow, *recorder) {
	t.Helper()
	if sign == nil {
		sign = signerFunc(func(string) (string, error) { return "516", nil })
	}
	rec := &recorder{}
	f, err := NewFlow(Deps{
		Decoder:      URIDecoder{LocalAddress: localAddr, ChainID: 1},
		Transactions: svc,
		Signer:       sign,
		Presenter:    rec,
	})
	require.NoError(t, err)
	return f, rec
}

func TestCapture_DecodeFailureKeepsScanning(t *testing.T) {
	svc := &mockService{}
	f, rec := newFlow(t, svc, nil)

	out, err := f.Capture("not a payment")
	require.NoError(t, err)
	assert.Equal(t, StatusDecodeFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrDecode)
	assert.Equal(t, Scanning, f.State())
	assert.Empty(t, rec.events)
	svc.AssertNotCalled(t, "CreateUnsignedTransaction", mock.Anything, mock.Anything)
}

type decoderFunc func(string) (Request, error)

func (f decoderFunc) Decode(payload string) (Request, error) { return f(payload) }

func TestCapture_DecodeDoesNotBlockFlow(t *testing.T) {
	release := make(chan struct{})
	decoding := make(chan struct{})

	slow := URIDecoder{LocalAddress: localAddr, ChainID: 1}
	f, err := NewFlow(Deps{
		Decoder: decoderFunc(func(payload string) (Request, error) {
			if payload == "slow" {
				close(decoding)
				<-release
				return slow.Decode(remoteAddr.Hex())
			}
			return slow.Decode(payload)
		}),
		Transactions: &mockService{},
		Signer:       signerFunc(func(string) (string, error) { return "", nil }),
		Presenter:    &recorder{},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.Capture("slow")
		done <- err
	}()
	<-decoding

	assert.Equal(t, Scanning, f.State())
	out, err := f.Capture(remoteAddr.Hex())
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingApproval, out.Status)

	close(release)
	assert.ErrorIs(t, <-done, ErrBusy)
	assert.Equal(t, Processing, f.State())
}

func TestApprove_LocalTargetHandsOff(t *testing.T) {
	svc := &mockService{}
	f, rec := newFlow(t, svc, nil)

	out, err := f.Capture("ethereum:" + localAddr.Hex() + "?value=1e18")
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingApproval, out.Status)
	assert.True(t, out.Request.UserInfo.IsLocal)
	assert.Equal(t, Processing, f.State())

	out, err = f.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusLocalHandoff, out.Status)
	assert.Equal(t, Scanning, f.State())
	assert.Equal(t, 1, rec.count("open_payment_message"))
	assert.Equal(t, []string{localAddr.Hex()}, rec.opened)
	assert.Zero(t, rec.count("show_activity"))
	svc.AssertNotCalled(t, "CreateUnsignedTransaction", mock.Anything, mock.Anything)
}

func TestApprove_CreateFailureReturnsSilently(t *testing.T) {
	svc := &mockService{}
	svc.On("CreateUnsignedTransaction", mock.Anything, mock.Anything).Return("", errors.New("insufficient funds"))
	f, rec := newFlow(t, svc, nil)

	_, err := f.Capture(remoteAddr.Hex())
	require.NoError(t, err)

	out, err := f.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCreateFailed, out.Status)
	assert.Error(t, out.Err)
	assert.Equal(t, Scanning, f.State())
	assert.Equal(t, []string{"show_activity", "hide_activity", "start_scanning"}, rec.events)
	assert.Zero(t, rec.count("present_error"))
	svc.AssertNotCalled(t, "SendSignedTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestApprove_SubmitSuccess(t *testing.T) {
	svc := &mockService{}
	svc.On("CreateUnsignedTransaction", mock.Anything, mock.MatchedBy(func(p txservice.Params) bool {
		return p["to"] == remoteAddr.Hex() && p["from"] == localAddr.Hex() && p["value"] == "0x1bf32a5451a30000"
	})).Return("0xe980", nil)
	svc.On("SendSignedTransaction", mock.Anything, "0xe980", "0x5116").Return(txservice.Response{"tx_hash": "0x01"}, nil)

	f, rec := newFlow(t, svc, signerFunc(func(tx string) (string, error) {
		assert.Equal(t, "0xe980", tx)
		return "5116", nil
	}))

	_, err := f.Capture("ethereum:" + remoteAddr.Hex() + "@1?value=2.014e18")
	require.NoError(t, err)

	out, err := f.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, out.Status)
	assert.Equal(t, "0x01", out.Response["tx_hash"])
	assert.Equal(t, Success, f.State())
	assert.Equal(t, 1, rec.count("present_success"))

	_, err = f.Capture(remoteAddr.Hex())
	assert.ErrorIs(t, err, ErrBusy, "capture disabled until dismissed")

	require.NoError(t, f.Dismiss())
	assert.Equal(t, Scanning, f.State())
	assert.Equal(t, 1, rec.count("start_scanning"))
	assert.Equal(t, 1, rec.count("present_success"))

	_, err = f.Capture(remoteAddr.Hex())
	assert.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestApprove_SubmitFailurePresentsPayload(t *testing.T) {
	svc := &mockService{}
	payload := txservice.Response{"message": "nonce too low"}
	svc.On("CreateUnsignedTransaction", mock.Anything, mock.Anything).Return("0xe980", nil)
	svc.On("SendSignedTransaction", mock.Anything, "0xe980", mock.Anything).
		Return(payload, &txservice.APIError{Status: 400, Payload: payload})

	f, rec := newFlow(t, svc, nil)
	_, err := f.Capture(remoteAddr.Hex())
	require.NoError(t, err)

	out, err := f.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitFailed, out.Status)
	assert.Equal(t, Failed, f.State())
	assert.Equal(t, 1, rec.count("present_error"))
	assert.Equal(t, payload, rec.errResp)

	require.NoError(t, f.Dismiss())
	assert.Equal(t, Scanning, f.State())
	assert.ErrorIs(t, f.Dismiss(), ErrBusy)
}

func TestApprove_SignFailure(t *testing.T) {
	svc := &mockService{}
	svc.On("CreateUnsignedTransaction", mock.Anything, mock.Anything).Return("0xe980", nil)
	f, rec := newFlow(t, svc, signerFunc(func(string) (string, error) { return "", errors.New("locked") }))

	_, err := f.Capture(remoteAddr.Hex())
	require.NoError(t, err)
	out, err := f.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSignFailed, out.Status)
	assert.Equal(t, Failed, f.State())
	assert.Equal(t, 1, rec.count("present_error"))
	svc.AssertNotCalled(t, "SendSignedTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeclineAndPaymentFailed(t *testing.T) {
	f, rec := newFlow(t, &mockService{}, nil)

	_, err := f.Decline()
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.Approve(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	_, err = f.Capture(remoteAddr.Hex())
	require.NoError(t, err)
	_, ok := f.Pending()
	assert.True(t, ok)

	out, err := f.Decline()
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, out.Status)
	assert.Equal(t, Scanning, f.State())
	_, ok = f.Pending()
	assert.False(t, ok)

	_, err = f.Capture(remoteAddr.Hex())
	require.NoError(t, err)
	f.PaymentFailed(errors.New("rejected"), txservice.Response{})
	assert.Equal(t, Scanning, f.State())
	assert.Equal(t, 2, rec.count("start_scanning"))
}

func TestApprove_OneInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	svc := &mockService{}
	svc.On("CreateUnsignedTransaction", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("", errors.New("down"))

	f, _ := newFlow(t, svc, nil)
	_, err := f.Capture(remoteAddr.Hex())
	require.NoError(t, err)

	done := make(chan Outcome)
	go func() {
		out, _ := f.Approve(context.Background())
		done <- out
	}()
	<-started

	_, err = f.Approve(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.Capture(remoteAddr.Hex())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.Decline()
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	assert.Equal(t, StatusCreateFailed, (<-done).Status)
	assert.Equal(t, Scanning, f.State())
}
