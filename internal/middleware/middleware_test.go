package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rampa-app/rampa-backend/internal/auth"
)

// twilioSignature signs the way Twilio does: HMAC-SHA1 over the URL followed
// by the sorted form parameters
func twilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := fullURL
	for _, k := range keys {
		data += k + params.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signedApp(authToken string) *fiber.App {
	app := fiber.New()
	app.Post("/webhook/whatsapp", ValidateTwilioSignature(authToken, "https://api.rampa.test"), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestValidateTwilioSignature(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+490001"}, "Body": {"1"}}
	app := signedApp("token")

	req := formRequest("/webhook/whatsapp", form)
	req.Header.Set("X-Twilio-Signature", twilioSignature("token", "https://api.rampa.test/webhook/whatsapp", form))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("valid signature: status %d, want 200", resp.StatusCode)
	}

	req = formRequest("/webhook/whatsapp", form)
	req.Header.Set("X-Twilio-Signature", twilioSignature("wrong", "https://api.rampa.test/webhook/whatsapp", form))
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("bad signature: status %d, want 401", resp.StatusCode)
	}

	resp, _ = app.Test(formRequest("/webhook/whatsapp", form))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("missing signature: status %d, want 401", resp.StatusCode)
	}
}

func TestValidateTwilioSignatureWithoutToken(t *testing.T) {
	req := formRequest("/webhook/whatsapp", url.Values{"From": {"x"}})
	req.Header.Set("X-Twilio-Signature", "abc")
	resp, _ := signedApp("").Test(req)
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("status %d, want 500", resp.StatusCode)
	}
}

func jwtApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/api/me", RequireJWT(secret), func(c *fiber.Ctx) error {
		claims, _ := c.Locals(ClaimsKey).(auth.Claims)
		return c.SendString(claims.Subject)
	})
	return app
}

func TestRequireJWT(t *testing.T) {
	app := jwtApp("secret")

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Errorf("garbage token: status %d, want 401", resp.StatusCode)
	}

	token, _, _ := auth.GenerateToken("user-1", "", "secret", time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("valid token: status %d, want 200", resp.StatusCode)
	}
}

func TestRequireJWTDisabled(t *testing.T) {
	resp, _ := jwtApp("").Test(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status %d, want 200 when no secret configured", resp.StatusCode)
	}
}

func TestSenderRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewSenderRateLimiter(1, 2)
	r.now = func() time.Time { return now }

	if !r.Allow("+490001") || !r.Allow("+490001") {
		t.Fatal("burst of 2 should be allowed")
	}
	if r.Allow("+490001") {
		t.Error("third message in the same instant allowed")
	}
	if !r.Allow("+490002") {
		t.Error("other sender throttled")
	}

	now = now.Add(time.Second)
	if !r.Allow("+490001") {
		t.Error("token not refilled after one second")
	}

	now = now.Add(limiterIdleTTL + time.Minute)
	r.Allow("+490003")
	if _, ok := r.limiters["+490002"]; ok {
		t.Error("idle limiter not pruned")
	}
}

func TestSenderRateLimiterHandlerDropsWith200(t *testing.T) {
	r := NewSenderRateLimiter(0.001, 1)
	handled := 0
	app := fiber.New()
	app.Post("/webhook/whatsapp", r.Handler(), func(c *fiber.Ctx) error {
		handled++
		return c.SendStatus(fiber.StatusOK)
	})

	form := url.Values{"From": {"whatsapp:+490001"}, "Body": {"1"}}
	var bodies []string
	for i := 0; i < 3; i++ {
		resp, err := app.Test(formRequest("/webhook/whatsapp", form))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Errorf("status %d, want 200", resp.StatusCode)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		bodies = append(bodies, string(raw))
	}
	if handled != 1 {
		t.Errorf("handled = %d, want 1", handled)
	}
	if !strings.Contains(bodies[1], "<Message>") || !strings.Contains(bodies[1], "too quickly") {
		t.Errorf("first dropped message got %q, want a TwiML slow down reply", bodies[1])
	}
	if strings.Contains(bodies[2], "<Message>") {
		t.Errorf("second dropped message got %q, want no reply", bodies[2])
	}
}
