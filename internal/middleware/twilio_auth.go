package middleware

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	twilioClient "github.com/twilio/twilio-go/client"
)

// ValidateTwilioSignature validates that the webhook request is from Twilio.
// publicBaseURL is the externally visible origin ("https://api.rampa.app");
// when empty the URL is rebuilt from the request.
func ValidateTwilioSignature(authToken, publicBaseURL string) fiber.Handler {
	validator := twilioClient.NewRequestValidator(authToken)

	return func(c *fiber.Ctx) error {
		// Get Twilio signature from header
		twilioSignature := c.Get("X-Twilio-Signature")
		if twilioSignature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}

		if authToken == "" {
			// Log error but don't expose to client
			log.Println("ERROR: TWILIO_AUTH_TOKEN not set")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		formParams := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			formParams[string(key)] = string(value)
		})

		if !validator.Validate(fullURL(c, publicBaseURL), formParams, twilioSignature) {
			log.Printf("⚠️  Rejected webhook with invalid Twilio signature from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}

// fullURL reconstructs the URL Twilio signed
func fullURL(c *fiber.Ctx, publicBaseURL string) string {
	if publicBaseURL != "" {
		return publicBaseURL + c.OriginalURL()
	}

	protocol := "https"
	if c.Protocol() == "http" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s%s", protocol, c.Hostname(), c.OriginalURL())
}
