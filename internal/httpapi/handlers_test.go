package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lnurlw-boltcard/internal/cardauth"
	"lnurlw-boltcard/internal/registration"
)

// --- minimal in-memory fakes, local to this package's tests.

type fakeCardRepo struct {
	mu           sync.Mutex
	cards        map[int64]*cardauth.Card
	sessions     map[string]*cardauth.Session
	sessionsByID map[int64]*cardauth.Session
	nextPayment  int64
}

func newFakeCardRepo(cards ...cardauth.Card) *fakeCardRepo {
	r := &fakeCardRepo{
		cards:        map[int64]*cardauth.Card{},
		sessions:     map[string]*cardauth.Session{},
		sessionsByID: map[int64]*cardauth.Session{},
	}
	for i := range cards {
		c := cards[i]
		r.cards[c.CardID] = &c
	}
	return r
}

func (r *fakeCardRepo) FindEnabledCards(ctx context.Context) ([]cardauth.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cardauth.Card
	for _, c := range r.cards {
		if c.Enabled {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCardRepo) FindCard(ctx context.Context, cardID int64) (*cardauth.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cards[cardID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCardRepo) BindUID(ctx context.Context, cardID int64, uid [7]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cards[cardID]
	if !c.UIDBound {
		c.UID = uid
		c.UIDBound = true
	}
	return nil
}

func (r *fakeCardRepo) AdvanceCounter(ctx context.Context, cardID int64, newCounter uint32) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cards[cardID]
	if newCounter > c.LastCounter {
		c.LastCounter = newCounter
		return true, nil
	}
	return false, nil
}

func (r *fakeCardRepo) CreateSession(ctx context.Context, cardID int64, sessionToken string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPayment++
	s := &cardauth.Session{PaymentID: r.nextPayment, CardID: cardID, SessionToken: sessionToken, Status: cardauth.SessionPending, CreatedAt: time.Now()}
	r.sessions[sessionToken] = s
	r.sessionsByID[s.PaymentID] = s
	return s.PaymentID, nil
}

func (r *fakeCardRepo) FindSession(ctx context.Context, sessionToken string) (*cardauth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionToken]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeCardRepo) AttachInvoice(ctx context.Context, paymentID int64, invoice string, amountMsats int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessionsByID[paymentID]
	s.Invoice = invoice
	s.AmountMsats = amountMsats
	s.Status = cardauth.SessionInvoiced
	return nil
}

func (r *fakeCardRepo) MarkPaid(ctx context.Context, paymentID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessionsByID[paymentID]
	s.Paid = true
	s.Status = cardauth.SessionPaid
	s.PaymentTime = time.Now()
	return nil
}

func (r *fakeCardRepo) DailyTotalMsats(ctx context.Context, cardID int64) (int64, error) {
	return 0, nil
}

type fakeInvoiceParser struct{}

func (fakeInvoiceParser) Parse(raw string) (cardauth.Invoice, error) {
	return cardauth.Invoice{AmountMsats: 1000}, nil
}

type fakeBackend struct{}

func (fakeBackend) PayInvoice(ctx context.Context, invoice string, expectedAmountMsats int64) (cardauth.PaymentResult, error) {
	return cardauth.PaymentResult{Success: true}, nil
}

func (fakeBackend) GetInfo(ctx context.Context) (cardauth.NodeInfo, error) {
	return cardauth.NodeInfo{Alias: "fake"}, nil
}

type fakeRegRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*registration.CardRecord
	byCode map[string]int64
}

func newFakeRegRepo() *fakeRegRepo {
	return &fakeRegRepo{byID: map[int64]*registration.CardRecord{}, byCode: map[string]int64{}}
}

func (f *fakeRegRepo) CreateCard(ctx context.Context, params registration.CreateCardParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.byID[id] = &registration.CardRecord{
		CardID:            id,
		CardName:          params.CardName,
		K0:                params.K0,
		K1:                params.K1,
		K2:                params.K2,
		K3:                params.K3,
		K4:                params.K4,
		OneTimeCodeExpiry: params.OneTimeCodeExpiry,
	}
	f.byCode[params.OneTimeCode] = id
	return id, nil
}

func (f *fakeRegRepo) FindByOneTimeCode(ctx context.Context, code string) (*registration.CardRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byCode[code]
	if !ok {
		return nil, nil
	}
	rec := *f.byID[id]
	return &rec, nil
}

func (f *fakeRegRepo) MarkOneTimeCodeUsed(ctx context.Context, cardID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[cardID].OneTimeCodeUsed = true
	return nil
}

const (
	vectorK1 = "0c3b25d92b38ae443229dd59ad34b85d"
	vectorK2 = "b45775776cb224c75bcde7ca3704e933"
	vectorP  = "4E2E289D945A66BB13377A728884E867"
	vectorC  = "E19CCB1FED8892CE"
)

func mustKey(t *testing.T, hexStr string) cardauth.AesKey {
	t.Helper()
	raw, err := hex.DecodeString(hexStr)
	require.NoError(t, err)
	k, err := cardauth.NewAesKey(raw)
	require.NoError(t, err)
	return k
}

func newTestHandlers(t *testing.T) (*Handlers, *fakeCardRepo, *fakeRegRepo) {
	t.Helper()
	cardRepo := newFakeCardRepo(cardauth.Card{
		CardID:       1,
		K1:           mustKey(t, vectorK1),
		K2:           mustKey(t, vectorK2),
		Enabled:      true,
		TxLimitSats:  100_000,
		DayLimitSats: 1_000_000,
		CardName:     "test card",
	})
	cardSvc := cardauth.NewService(cardRepo, fakeInvoiceParser{}, fakeBackend{}, nil, "cards.example.com", zap.NewNop())

	regRepo := newFakeRegRepo()
	regSvc := registration.NewService(regRepo, registration.Config{
		LNURLWBase:          "https://cards.example.com/ln",
		RegistrationBase:    "https://cards.example.com/new",
		DefaultTxLimitSats:  100000,
		DefaultDayLimitSats: 1000000,
		CodeTTL:             24 * time.Hour,
	})

	return NewHandlers(cardSvc, regSvc, zap.NewNop()), cardRepo, regRepo
}

func TestHandleTap_HappyPath(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/ln?p="+vectorP+"&c="+vectorC, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp cardauth.LNURLWPayResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "withdrawRequest", resp.Tag)
}

func TestHandleTap_BadCMAC_ReturnsBadRequest(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/ln?p="+vectorP+"&c=0000000000000000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ERROR", body.Status)
}

func TestHandleCallback_HappyPath(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := NewRouter(h)

	tapReq := httptest.NewRequest(http.MethodGet, "/ln?p="+vectorP+"&c="+vectorC, nil)
	tapRec := httptest.NewRecorder()
	router.ServeHTTP(tapRec, tapReq)
	require.Equal(t, http.StatusOK, tapRec.Code)

	var tapResp cardauth.LNURLWPayResponse
	require.NoError(t, json.NewDecoder(tapRec.Body).Decode(&tapResp))

	cbReq := httptest.NewRequest(http.MethodGet, "/ln/callback?k1="+tapResp.K1+"&pr=anything", nil)
	cbRec := httptest.NewRecorder()
	router.ServeHTTP(cbRec, cbReq)

	require.Equal(t, http.StatusOK, cbRec.Code)
	var result cardauth.CallbackResult
	require.NoError(t, json.NewDecoder(cbRec.Body).Decode(&result))
	assert.Equal(t, "OK", result.Status)
}

func TestHandleCreateCard_AndRegistration(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := NewRouter(h)

	body := strings.NewReader(`{"card_name":"wallet card"}`)
	createReq := httptest.NewRequest(http.MethodPost, "/api/createboltcard", body)
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusOK, createRec.Code)

	var createResp registration.CreateCardResponse
	require.NoError(t, json.NewDecoder(createRec.Body).Decode(&createResp))
	assert.Equal(t, "OK", createResp.Status)

	idx := strings.Index(createResp.URL, "?a=")
	require.GreaterOrEqual(t, idx, 0)
	code := createResp.URL[idx+3:]

	regReq := httptest.NewRequest(http.MethodGet, "/new?a="+code, nil)
	regRec := httptest.NewRecorder()
	router.ServeHTTP(regRec, regReq)
	require.Equal(t, http.StatusOK, regRec.Code)

	var regResp registration.CardRegistrationResponse
	require.NoError(t, json.NewDecoder(regRec.Body).Decode(&regResp))
	assert.Equal(t, "wallet card", regResp.CardName)
	assert.Len(t, regResp.K0, 32)
}

func TestHandleHealthz(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
