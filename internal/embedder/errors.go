package embedder

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// maxErrorBody bounds how much of a failed response is kept for the message.
const maxErrorBody = 4 << 10

// checkTexts rejects an empty batch or any blank text before a request is made.
func checkTexts(name string, texts []string) error {
	if len(texts) == 0 {
		return apperr.Validation("%s: no texts to embed", name)
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return apperr.Validation("%s: text %d is empty", name, i)
		}
	}
	return nil
}

// statusError classifies a non-2xx response. Client errors are permanent
// except 408 and 429, which are worth another attempt like any 5xx.
func statusError(name string, code int, msg string) error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return apperr.Permanent("%s: HTTP %d: %s", name, code, msg)
	}
	return fmt.Errorf("%s: HTTP %d: %s", name, code, msg)
}
