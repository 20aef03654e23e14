package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rampa-app/rampa-backend/internal/auth"
	"github.com/rampa-app/rampa-backend/internal/middleware"
	"github.com/rampa-app/rampa-backend/internal/models"
	"github.com/rampa-app/rampa-backend/internal/services"
	"github.com/rampa-app/rampa-backend/internal/storage"
)

type inboundCall struct {
	Phone string
	Text  string
}

type fakeTransfers struct {
	calls      []inboundCall
	inboundErr error
	reply      []services.OutboundMessage

	initiated   []services.InitiateRequest
	initiateErr error

	transfers map[string]*models.Transfer
	cancelErr error
}

func newFakeTransfers() *fakeTransfers {
	return &fakeTransfers{transfers: make(map[string]*models.Transfer)}
}

func (f *fakeTransfers) HandleInbound(ctx context.Context, phone, text string) ([]services.OutboundMessage, error) {
	f.calls = append(f.calls, inboundCall{Phone: phone, Text: text})
	return f.reply, f.inboundErr
}

func (f *fakeTransfers) Initiate(ctx context.Context, req services.InitiateRequest) (*models.TransferSession, error) {
	f.initiated = append(f.initiated, req)
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &models.TransferSession{
		SenderPhone: req.SenderPhone,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Step:        models.StepChoosingRecipient,
		Version:     1,
	}, nil
}

func (f *fakeTransfers) Transfer(reference string) (*models.Transfer, error) {
	t, ok := f.transfers[reference]
	if !ok {
		return nil, storage.ErrTransferNotFound
	}
	return t, nil
}

func (f *fakeTransfers) CancelTransfer(ctx context.Context, reference string) (*models.Transfer, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	t, ok := f.transfers[reference]
	if !ok {
		return nil, storage.ErrTransferNotFound
	}
	t.Status = models.TransferStatusCancelled
	return t, nil
}

func (f *fakeTransfers) ActiveSessions() (int, error) { return 2, nil }
func (f *fakeTransfers) PendingSettlements() int      { return 1 }

func newTestApp(f *fakeTransfers) *fiber.App {
	return newTestAppAs(f, "")
}

// newTestAppAs mounts the handlers behind a stand-in for RequireJWT that
// authenticates every request as phone
func newTestAppAs(f *fakeTransfers, phone string) *fiber.App {
	app := fiber.New()
	if phone != "" {
		app.Use(func(c *fiber.Ctx) error {
			c.Locals(middleware.ClaimsKey, auth.Claims{Subject: "user-1", Phone: phone})
			return c.Next()
		})
	}
	wa := NewWhatsAppHandler(f)
	th := NewTransferHandler(f)
	app.Post("/webhook/whatsapp", wa.HandleWebhook)
	app.Post("/test/whatsapp", wa.HandleTestWebhook)
	app.Post("/api/transfers/initiate", th.InitiateTransfer)
	app.All("/api/transfers/initiate", MethodNotAllowed)
	app.Post("/api/transfers/:reference/cancel", th.CancelTransfer)
	app.Get("/api/transfers/:reference", th.GetTransfer)
	return app
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	body := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), fiber.MIMEApplicationJSON) {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, body
}

func TestWebhookForwardsMessage(t *testing.T) {
	f := newFakeTransfers()
	app := newTestApp(f)

	status, _ := do(t, app, formRequest("/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+5215512345678"},
		"Body": {"1"},
	}))
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(f.calls) != 1 || f.calls[0] != (inboundCall{Phone: "+5215512345678", Text: "1"}) {
		t.Errorf("calls = %+v", f.calls)
	}
}

func TestWebhookAcknowledgesInternalFailure(t *testing.T) {
	f := newFakeTransfers()
	f.inboundErr = errors.New("store down")
	app := newTestApp(f)

	status, _ := do(t, app, formRequest("/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+5215512345678"},
		"Body": {"yes"},
	}))
	if status != fiber.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
}

func TestWebhookRejectsMissingFrom(t *testing.T) {
	f := newFakeTransfers()
	app := newTestApp(f)

	status, _ := do(t, app, formRequest("/webhook/whatsapp", url.Values{"Body": {"hi"}}))
	if status != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if len(f.calls) != 0 {
		t.Errorf("message forwarded without sender: %+v", f.calls)
	}
}

func TestWebhookIgnoresStatusCallbacks(t *testing.T) {
	f := newFakeTransfers()
	app := newTestApp(f)

	status, _ := do(t, app, formRequest("/webhook/whatsapp", url.Values{
		"From":          {"whatsapp:+5215512345678"},
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
	}))
	if status != fiber.StatusOK {
		t.Errorf("status = %d", status)
	}
	if len(f.calls) != 0 {
		t.Errorf("status callback forwarded: %+v", f.calls)
	}
}

func TestTestWebhookReturnsMessages(t *testing.T) {
	f := newFakeTransfers()
	f.reply = []services.OutboundMessage{{To: "+490001", Body: "hello"}}
	app := newTestApp(f)

	status, body := do(t, app, jsonRequest(http.MethodPost, "/test/whatsapp", `{"from":"+490001","message":"hi"}`))
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	messages, ok := body["messages"].([]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("messages = %v", body["messages"])
	}
	if m := messages[0].(map[string]interface{}); m["body"] != "hello" {
		t.Errorf("message = %v", m)
	}

	status, _ = do(t, app, jsonRequest(http.MethodPost, "/test/whatsapp", `{"from":"+490001"}`))
	if status != fiber.StatusBadRequest {
		t.Errorf("missing message: status = %d", status)
	}
}

func TestInitiateTransfer(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{
			name:       "ok",
			body:       `{"senderPhone":"+490001","transferData":{"amount":200,"recipientAmount":3700,"currency":"MXN","exchangeRate":18.5,"fee":2}}`,
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "missing transfer data",
			body:       `{"senderPhone":"+490001"}`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "malformed json",
			body:       `{"senderPhone":`,
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "rejected by service",
			body:       `{"senderPhone":"+490001","transferData":{"amount":0,"currency":"MXN"}}`,
			err:        fmt.Errorf("%w: amount", services.ErrInvalidRequest),
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "send failure",
			body:       `{"senderPhone":"+490001","transferData":{"amount":200,"currency":"MXN"}}`,
			err:        errors.New("twilio down"),
			wantStatus: fiber.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeTransfers()
			f.initiateErr = tt.err
			app := newTestApp(f)

			status, _ := do(t, app, jsonRequest(http.MethodPost, "/api/transfers/initiate", tt.body))
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}

func TestInitiateTransferMapsFields(t *testing.T) {
	f := newFakeTransfers()
	app := newTestApp(f)

	do(t, app, jsonRequest(http.MethodPost, "/api/transfers/initiate",
		`{"senderPhone":"+490001","transferData":{"amount":200,"recipientAmount":3700,"currency":"MXN","exchangeRate":18.5,"fee":2}}`))

	want := services.InitiateRequest{
		SenderPhone:     "+490001",
		Amount:          200,
		Currency:        "MXN",
		RecipientAmount: 3700,
		ExchangeRate:    18.5,
		Fee:             2,
	}
	if len(f.initiated) != 1 || f.initiated[0] != want {
		t.Errorf("initiated = %+v", f.initiated)
	}
}

func TestInitiateWrongMethod(t *testing.T) {
	app := newTestApp(newFakeTransfers())

	status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/transfers/initiate", nil))
	if status != fiber.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", status)
	}
}

func TestGetTransfer(t *testing.T) {
	f := newFakeTransfers()
	f.transfers["RMP-AAAA1111"] = &models.Transfer{
		Reference: "RMP-AAAA1111",
		Amount:    200,
		Currency:  "MXN",
		Status:    models.TransferStatusProcessing,
	}
	app := newTestApp(f)

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/api/transfers/RMP-AAAA1111", nil))
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != models.TransferStatusProcessing {
		t.Errorf("body = %v", body)
	}

	status, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/api/transfers/RMP-MISSING0", nil))
	if status != fiber.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", status)
	}
}

func TestCancelTransfer(t *testing.T) {
	f := newFakeTransfers()
	f.transfers["RMP-AAAA1111"] = &models.Transfer{Reference: "RMP-AAAA1111", Status: models.TransferStatusProcessing}
	app := newTestApp(f)

	status, body := do(t, app, httptest.NewRequest(http.MethodPost, "/api/transfers/RMP-AAAA1111/cancel", nil))
	if status != fiber.StatusOK || body["status"] != models.TransferStatusCancelled {
		t.Errorf("cancel: %d %v", status, body)
	}

	status, _ = do(t, app, httptest.NewRequest(http.MethodPost, "/api/transfers/RMP-MISSING0/cancel", nil))
	if status != fiber.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", status)
	}

	f.cancelErr = storage.ErrTransferStateConflict
	status, _ = do(t, app, httptest.NewRequest(http.MethodPost, "/api/transfers/RMP-AAAA1111/cancel", nil))
	if status != fiber.StatusConflict {
		t.Errorf("completed: status = %d, want 409", status)
	}
}

func TestHealthCheck(t *testing.T) {
	app := fiber.New()
	f := newFakeTransfers()

	app.Get("/health", NewHealthHandler("1.0.0", "memory", f, nil).Check)
	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	if status != fiber.StatusOK || body["status"] != "healthy" || body["storage"] != "memory" {
		t.Fatalf("healthy: %d %v", status, body)
	}
	svc := body["services"].(map[string]interface{})
	if svc["active_sessions"] != float64(2) || svc["pending_settlements"] != float64(1) {
		t.Errorf("services = %v", svc)
	}

	down := fiber.New()
	down.Get("/health", NewHealthHandler("1.0.0", "postgres", f, func() error { return errors.New("no db") }).Check)
	status, body = do(t, down, httptest.NewRequest(http.MethodGet, "/health", nil))
	if status != fiber.StatusServiceUnavailable || body["status"] != "unhealthy" {
		t.Errorf("unhealthy: %d %v", status, body)
	}
}

func TestTokenPhoneMustMatchSender(t *testing.T) {
	f := newFakeTransfers()
	f.transfers["RMP-AAAA1111"] = &models.Transfer{
		Reference:   "RMP-AAAA1111",
		SenderPhone: "+490001",
		Status:      models.TransferStatusProcessing,
	}
	other := newTestAppAs(f, "+490002")

	status, _ := do(t, other, jsonRequest(http.MethodPost, "/api/transfers/initiate",
		`{"senderPhone":"+490001","transferData":{"amount":200,"currency":"MXN"}}`))
	if status != fiber.StatusForbidden {
		t.Errorf("initiate for another sender: status = %d, want 403", status)
	}
	if len(f.initiated) != 0 {
		t.Errorf("initiated = %+v, want none", f.initiated)
	}

	status, _ = do(t, other, httptest.NewRequest(http.MethodGet, "/api/transfers/RMP-AAAA1111", nil))
	if status != fiber.StatusForbidden {
		t.Errorf("read another sender's transfer: status = %d, want 403", status)
	}

	status, _ = do(t, other, httptest.NewRequest(http.MethodPost, "/api/transfers/RMP-AAAA1111/cancel", nil))
	if status != fiber.StatusForbidden {
		t.Errorf("cancel another sender's transfer: status = %d, want 403", status)
	}
	if f.transfers["RMP-AAAA1111"].Status != models.TransferStatusProcessing {
		t.Error("transfer cancelled by a token for another sender")
	}

	owner := newTestAppAs(f, "whatsapp:+490001")
	status, _ = do(t, owner, jsonRequest(http.MethodPost, "/api/transfers/initiate",
		`{"senderPhone":"+490001","transferData":{"amount":200,"currency":"MXN"}}`))
	if status != fiber.StatusOK {
		t.Errorf("initiate for own phone: status = %d, want 200", status)
	}
	status, body := do(t, owner, httptest.NewRequest(http.MethodPost, "/api/transfers/RMP-AAAA1111/cancel", nil))
	if status != fiber.StatusOK || body["status"] != models.TransferStatusCancelled {
		t.Errorf("cancel own transfer: %d %v", status, body)
	}
}
