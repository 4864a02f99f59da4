package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/labstack/echo/v4"
)

// validateTwilioSignature verifies Twilio request signatures.
func validateTwilioSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}

	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expectedSignature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// TwilioAuth validates webhook requests on the protected paths using the
// X-Twilio-Signature header. GET webhooks sign the full URL including the
// query string; POST webhooks additionally sign the sorted form parameters.
func TwilioAuth(getAuthToken func() string, protected ...string) echo.MiddlewareFunc {
	protectedSet := make(map[string]struct{}, len(protected))
	for _, p := range protected {
		protectedSet[p] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := protectedSet[c.Request().URL.Path]; !ok {
				return next(c)
			}

			authToken := getAuthToken()
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			params := make(map[string]string)
			if c.Request().Method == http.MethodPost {
				bodyBytes, err := io.ReadAll(c.Request().Body)
				if err != nil {
					return c.String(http.StatusBadRequest, "Failed to read request body")
				}
				formData, err := url.ParseQuery(string(bodyBytes))
				if err != nil {
					return c.String(http.StatusBadRequest, "Failed to parse form data")
				}
				for key, values := range formData {
					if len(values) > 0 {
						params[key] = values[0]
					}
				}
			}

			signature := c.Request().Header.Get("X-Twilio-Signature")
			requestURL := fmt.Sprintf("https://%s%s", c.Request().Host, c.Request().RequestURI)

			if !validateTwilioSignature(authToken, signature, requestURL, params) {
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			c.Set("twilioParams", params)
			return next(c)
		}
	}
}
