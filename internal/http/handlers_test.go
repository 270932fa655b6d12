package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toshi-app/toshi-client/internal/contacts"
	"github.com/toshi-app/toshi-client/internal/exchangerate"
	"github.com/toshi-app/toshi-client/internal/kvstore"
	"github.com/toshi-app/toshi-client/internal/messaging"
	"github.com/toshi-app/toshi-client/internal/scanner"
	"github.com/toshi-app/toshi-client/internal/sound"
	"github.com/toshi-app/toshi-client/internal/token"
	"github.com/toshi-app/toshi-client/internal/txservice"
)

var (
	walletAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	peerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type stubService struct {
	createErr error
	calls     int
}

func (s *stubService) CreateUnsignedTransaction(context.Context, txservice.Params) (string, error) {
	s.calls++
	if s.createErr != nil {
		return "", s.createErr
	}
	return "0xe980", nil
}

func (s *stubService) SendSignedTransaction(context.Context, string, string) (txservice.Response, error) {
	return txservice.Response{"tx_hash": "0x01"}, nil
}

type stubSigner struct{}

func (stubSigner) SignTransaction(string) (string, error) { return "51", nil }

type stubBalances struct{}

func (stubBalances) Balance(context.Context, string) (*big.Int, error) {
	return big.NewInt(1_500_000_000_000_000_000), nil
}

func (stubBalances) Tokens(context.Context, string) ([]*token.Token, error) {
	return []*token.Token{token.NewContract("Dai", "DAI", "fa", 2, "0xdai", "")}, nil
}

type testAPI struct {
	handler *Handler
	router  *gin.Engine
	store   *kvstore.BoltStore
	svc     *stubService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	store, err := kvstore.OpenBolt(filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	msg, err := messaging.Open(filepath.Join(dir, "messaging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = msg.Close() })

	events := NewEvents()
	svc := &stubService{}
	flow, err := scanner.NewFlow(scanner.Deps{
		Decoder:      scanner.URIDecoder{LocalAddress: walletAddr},
		Transactions: svc,
		Signer:       stubSigner{},
		Presenter:    events,
	})
	require.NoError(t, err)

	rates := exchangerate.NewCache("", "ETH", "USD")
	rates.Set(decimal.RequireFromString("2000"))

	h, err := NewHandler(Deps{
		WalletAddress: walletAddr.Hex(),
		Balances:      stubBalances{},
		Rates:         rates,
		Contacts:      store,
		Messaging:     msg,
		Sounds:        &sound.Recorder{},
		Flow:          flow,
		Events:        events,
	})
	require.NoError(t, err)

	return &testAPI{handler: h, router: NewRouter(h, nil), store: store, svc: svc}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:50000"
	req.Host = "localhost:8090"
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthAndLoopbackGuard(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "10.0.0.8:4000"
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	req.Host = "evil.example"
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWalletTokens(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/api/wallet/tokens", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeBody[struct {
		Tokens []tokenRes `json:"tokens"`
	}](t, w)
	require.Len(t, out.Tokens, 2)
	assert.Equal(t, "ETH", out.Tokens[0].Symbol)
	assert.Equal(t, "1.5", out.Tokens[0].Display)
	assert.Equal(t, "$3,000.00 USD", out.Tokens[0].Fiat)
	assert.Equal(t, "2.50", out.Tokens[1].Display)
	assert.Empty(t, out.Tokens[1].Fiat)
}

func TestProfileEndpoints(t *testing.T) {
	a := newTestAPI(t)
	c := contacts.Contact{Address: peerAddr.Hex(), DisplayName: "Hal", Username: "hal"}

	w := a.do(t, http.MethodPost, "/api/profile", c)
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeBody[map[string]any](t, w)
	assert.Equal(t, "Hal", view["name"])
	assert.Equal(t, "@hal", view["username"])

	for i := 0; i < 2; i++ {
		w = a.do(t, http.MethodPost, "/api/profile/add", c)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "✓ Added")
	}

	w = a.do(t, http.MethodGet, "/api/contacts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[struct {
		Contacts []contacts.Contact `json:"contacts"`
	}](t, w)
	assert.Equal(t, []contacts.Contact{c}, list.Contacts)

	w = a.do(t, http.MethodGet, "/api/threads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"threads":[]}`, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/profile/message", c)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/threads", nil)
	threads := decodeBody[struct {
		Threads []messaging.Thread `json:"threads"`
	}](t, w)
	require.Len(t, threads.Threads, 1)
	assert.Equal(t, peerAddr.Hex(), threads.Threads[0].ContactID)

	w = a.do(t, http.MethodGet, "/api/profile/"+peerAddr.Hex()+"/qr", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = a.do(t, http.MethodGet, "/api/profile/0x0000000000000000000000000000000000000fff/qr", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/events", nil)
	ev := decodeBody[eventsRes](t, w)
	assert.Equal(t, []sound.Type{sound.AddedContact}, ev.Sounds)
	kinds := make([]string, 0, len(ev.Events))
	for _, e := range ev.Events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []string{EventDisplayMessage, EventPresentQRCode}, kinds)

	w = a.do(t, http.MethodPost, "/api/profile/add", contacts.Contact{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfile_AddressCaseAndScreenCache(t *testing.T) {
	a := newTestAPI(t)
	lower := contacts.Contact{Address: strings.ToLower(peerAddr.Hex()), Username: "hal"}
	upper := contacts.Contact{Address: "0x" + strings.ToUpper(peerAddr.Hex()[2:]), Username: "hal"}

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/profile/add", lower).Code)
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/api/profile/add", upper).Code)

	keys, err := a.store.Keys(context.Background(), contacts.CollectionKey)
	require.NoError(t, err)
	assert.Equal(t, []string{peerAddr.Hex()}, keys)

	w := a.do(t, http.MethodGet, "/api/profile/"+strings.ToLower(peerAddr.Hex())+"/qr", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < maxScreens+10; i++ {
		addr := common.BigToAddress(big.NewInt(int64(0x1000 + i))).Hex()
		w := a.do(t, http.MethodPost, "/api/profile", contacts.Contact{Address: addr, Username: "u"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	a.handler.mu.Lock()
	defer a.handler.mu.Unlock()
	assert.Len(t, a.handler.screens, maxScreens)
	assert.Len(t, a.handler.order, maxScreens)
	assert.NotContains(t, a.handler.screens, peerAddr.Hex())
}

func TestScannerEndpoints(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/scanner/capture", captureReq{Payload: "garbage"})
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeBody[outcomeRes](t, w)
	assert.Equal(t, "decode_failed", out.Status)
	assert.Equal(t, "scanning", out.State)

	w = a.do(t, http.MethodPost, "/api/scanner/capture", captureReq{Payload: "ethereum:" + peerAddr.Hex() + "?value=1e18"})
	out = decodeBody[outcomeRes](t, w)
	assert.Equal(t, "awaiting_approval", out.Status)
	assert.Equal(t, "processing", out.State)

	w = a.do(t, http.MethodPost, "/api/scanner/capture", captureReq{Payload: peerAddr.Hex()})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/scanner/approve", nil)
	out = decodeBody[outcomeRes](t, w)
	assert.Equal(t, "submitted", out.Status)
	assert.Equal(t, "success", out.State)
	assert.Equal(t, "0x01", out.Response["tx_hash"])

	w = a.do(t, http.MethodPost, "/api/scanner/dismiss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "scanning", decodeBody[stateRes](t, w).State)

	w = a.do(t, http.MethodPost, "/api/scanner/dismiss", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	a.svc.createErr = errors.New("insufficient funds")
	a.do(t, http.MethodPost, "/api/scanner/capture", captureReq{Payload: peerAddr.Hex()})
	w = a.do(t, http.MethodPost, "/api/scanner/approve", nil)
	out = decodeBody[outcomeRes](t, w)
	assert.Equal(t, "create_failed", out.Status)
	assert.Equal(t, "scanning", out.State)

	a.do(t, http.MethodPost, "/api/scanner/capture", captureReq{Payload: peerAddr.Hex()})
	w = a.do(t, http.MethodGet, "/api/scanner/state", nil)
	st := decodeBody[stateRes](t, w)
	require.NotNil(t, st.Pending)
	assert.Equal(t, peerAddr.Hex(), st.Pending.UserInfo.Address)

	w = a.do(t, http.MethodPost, "/api/scanner/decline", nil)
	assert.Equal(t, "declined", decodeBody[outcomeRes](t, w).Status)

	a.do(t, http.MethodPost, "/api/scanner/capture", captureReq{Payload: walletAddr.Hex()})
	w = a.do(t, http.MethodPost, "/api/scanner/approve", nil)
	assert.Equal(t, "local_handoff", decodeBody[outcomeRes](t, w).Status)
	assert.Equal(t, 2, a.svc.calls, "local payments never reach the service")

	w = a.do(t, http.MethodPost, "/api/scanner/failed", paymentFailedReq{Error: "rejected"})
	assert.Equal(t, "scanning", decodeBody[stateRes](t, w).State)

	ev := decodeBody[eventsRes](t, a.do(t, http.MethodGet, "/api/events", nil))
	var success, errorsShown, handoffs int
	for _, e := range ev.Events {
		switch e.Kind {
		case EventPaymentSuccess:
			success++
		case EventPaymentError:
			errorsShown++
		case EventOpenPaymentMessage:
			handoffs++
		}
	}
	assert.Equal(t, 1, success)
	assert.Zero(t, errorsShown)
	assert.Equal(t, 1, handoffs)
}

func TestEvents_PresentErrorPrefersPayload(t *testing.T) {
	e := NewEvents()
	e.PresentError(errors.New("status 400"), txservice.Response{"message": "nonce too low"})
	e.PresentError(errors.New("timeout"), nil)

	got := e.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, "nonce too low", got[0].Error)
	assert.Equal(t, "timeout", got[1].Error)
	assert.Empty(t, e.Drain())
}
