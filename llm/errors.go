package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/click-gz/deskpet-backend/apperr"
)

// Normalize classifies a raw transport/upstream error into spec.md §7's
// taxonomy, mirroring original_source's AIProvider.normalize_error pattern
// of pattern-matching the status/message before the caller sees it.
func Normalize(err error, httpStatus int) *apperr.Error {
	if err == nil {
		return nil
	}
	if existing, ok := err.(*apperr.Error); ok {
		return existing
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Network, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.Network, "network error", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return apperr.Wrap(apperr.AuthConfig, "invalid or missing API key", err)
	case httpStatus == http.StatusTooManyRequests || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return apperr.Wrap(apperr.RateLimited, "upstream rate limited the request", err)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") || strings.Contains(msg, "timeout"):
		return apperr.Wrap(apperr.Network, "network failure", err)
	case httpStatus != 0 && httpStatus != http.StatusOK:
		return apperr.Wrap(apperr.UpstreamBadResponse, "upstream returned status "+strconv.Itoa(httpStatus), err)
	default:
		return apperr.Wrap(apperr.Internal, "unexpected provider failure", err)
	}
}
