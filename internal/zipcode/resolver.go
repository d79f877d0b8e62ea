// Package zipcode validates US zipcodes and resolves them to coordinates.
package zipcode

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/pizza-search/internal/model"
)

var zipcodeRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// IsValid reports whether s is a well-formed 5-digit or ZIP+4 code.
func IsValid(s string) bool {
	return zipcodeRe.MatchString(strings.TrimSpace(s))
}

// Resolver maps a zipcode to its centroid and locality. A nil Location with
// a nil error means the zipcode is unknown.
type Resolver interface {
	Resolve(ctx context.Context, zip string) (*model.Location, error)
}
