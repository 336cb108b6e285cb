package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
)

var (
	// ErrInvalidSlug is returned when a slug doesn't match the required format
	ErrInvalidSlug = errors.New("invalid slug format")

	// ErrSlugTooShort is returned when a slug is too short
	ErrSlugTooShort = errors.New("slug must be at least 3 characters")

	// ErrSlugTooLong is returned when a slug is too long
	ErrSlugTooLong = errors.New("slug must be at most 64 characters")

	// Format: ^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$
	slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

	validate = validator.New(validator.WithRequiredStructEnabled())

	// Resolution content allows basic formatting; titles are plain text.
	contentPolicy = bluemonday.UGCPolicy()
	titlePolicy   = bluemonday.StrictPolicy()
)

// ValidateSlug validates a slug:
// - Must be 3-64 characters long
// - Must start and end with lowercase alphanumeric (a-z, 0-9)
// - Can contain hyphens in the middle
func ValidateSlug(s string) error {
	s = NormalizeSlug(s)

	if len(s) < 3 {
		return ErrSlugTooShort
	}
	if len(s) > 64 {
		return ErrSlugTooLong
	}
	if !slugRegex.MatchString(s) {
		return ErrInvalidSlug
	}

	return nil
}

// NormalizeSlug normalizes a slug by converting to lowercase and trimming whitespace
func NormalizeSlug(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SlugFromName derives a slug from an organization name, transliterating
// non-ASCII letters ("Ąžuolo bendrija" -> "azuolo-bendrija").
func SlugFromName(name string) string {
	s := slug.Make(name)
	if len(s) > 64 {
		s = strings.TrimRight(s[:64], "-")
	}
	return s
}

// Struct validates a request DTO using its `validate` tags and returns the
// first failure as a readable message.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%s is required", fe.Field())
		case "oneof":
			return fmt.Errorf("%s must be one of: %s", fe.Field(), fe.Param())
		case "max":
			return fmt.Errorf("%s must be at most %s characters", fe.Field(), fe.Param())
		case "gte", "lte", "min":
			return fmt.Errorf("%s is out of range (%s %s)", fe.Field(), fe.Tag(), fe.Param())
		default:
			return fmt.Errorf("%s is invalid (%s)", fe.Field(), fe.Tag())
		}
	}
	return err
}

// DecodeJSON decodes the request body into v and validates it with Struct.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return Struct(v)
}

// SanitizeTitle strips all markup from a title.
func SanitizeTitle(s string) string {
	return strings.TrimSpace(titlePolicy.Sanitize(s))
}

// SanitizeContent keeps safe formatting markup and removes scripts and handlers.
func SanitizeContent(s string) string {
	return contentPolicy.Sanitize(s)
}

// ValidateWebhookURL validates an outbound notification webhook URL
func ValidateWebhookURL(url string) error {
	if url == "" {
		return errors.New("webhook URL is required")
	}
	if len(url) > 500 {
		return errors.New("webhook URL must be at most 500 characters")
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return errors.New("webhook URL must be an http(s) URL")
	}
	return nil
}
