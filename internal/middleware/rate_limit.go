package middleware

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/twilio/twilio-go/twiml"
	"golang.org/x/time/rate"

	"github.com/rampa-app/rampa-backend/internal/utils"
)

// limiterIdleTTL is how long an idle sender's limiter is kept
const limiterIdleTTL = 10 * time.Minute

// SlowDownMessage is the reply to the first dropped message of a burst
const SlowDownMessage = "🐢 You're sending messages too quickly. Please wait a moment and send your last reply again."

type senderLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	warned   bool
}

// SenderRateLimiter throttles inbound webhook messages per WhatsApp sender
type SenderRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*senderLimiter
	limit     rate.Limit
	burst     int
	lastPrune time.Time
	now       func() time.Time
}

// NewSenderRateLimiter allows perSecond messages per sender with the given burst
func NewSenderRateLimiter(perSecond float64, burst int) *SenderRateLimiter {
	return &SenderRateLimiter{
		limiters: make(map[string]*senderLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether a message from sender may be processed now
func (r *SenderRateLimiter) Allow(sender string) bool {
	allowed, _ := r.take(sender)
	return allowed
}

// take consumes a token for sender. warn is true only for the first message
// dropped since the sender was last allowed through.
func (r *SenderRateLimiter) take(sender string) (allowed, warn bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastPrune) > limiterIdleTTL {
		for key, l := range r.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(r.limiters, key)
			}
		}
		r.lastPrune = now
	}

	l, ok := r.limiters[sender]
	if !ok {
		l = &senderLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[sender] = l
	}
	l.lastSeen = now
	if l.limiter.AllowN(now, 1) {
		l.warned = false
		return true, false
	}
	warn = !l.warned
	l.warned = true
	return false, warn
}

// Handler drops throttled webhook messages. It still answers 200 so Twilio
// does not retry them. The first drop of a burst carries a TwiML reply asking
// the sender to slow down; later drops are silent.
func (r *SenderRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sender := utils.NormalizePhone(c.FormValue("From"))
		if sender == "" {
			return c.Next()
		}
		allowed, warn := r.take(sender)
		if allowed {
			return c.Next()
		}

		log.Printf("⚠️  Rate limit exceeded for %s, dropping message", sender)
		if !warn {
			return c.SendStatus(fiber.StatusOK)
		}

		reply, err := twiml.Messages([]twiml.Element{twiml.MessagingMessage{Body: SlowDownMessage}})
		if err != nil {
			log.Printf("Failed to build slow down reply for %s: %v", sender, err)
			return c.SendStatus(fiber.StatusOK)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
		return c.Status(fiber.StatusOK).SendString(reply)
	}
}
