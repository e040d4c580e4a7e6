package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PageMode selects the pagination strategy for list queries. The three
// modes carry different guarantees:
//
//   - PageOffset: classic page/per_page with a total count; stable only
//     when nothing writes concurrently.
//   - PageOffsetUncounted: same shape without the COUNT query.
//   - PageCursor: keyset pagination on (created_at, id); stable under
//     concurrent insertion.
type PageMode string

const (
	PageOffset          PageMode = "offset"
	PageOffsetUncounted PageMode = "offset_uncounted"
	PageCursor          PageMode = "cursor"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// PageRequest holds pagination input for one list call.
type PageRequest struct {
	Mode    PageMode
	PerPage int
	// Page is 1-based; used by the offset modes.
	Page int
	// Cursor is the opaque token from a previous page; used by PageCursor.
	Cursor string
}

// Normalize fills defaults and clamps limits.
func (p PageRequest) Normalize() PageRequest {
	if p.Mode == "" {
		p.Mode = PageOffset
	}
	if p.PerPage <= 0 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

// Page is one page of list results. Total is set only in counted mode;
// NextCursor only in cursor mode, and empty when iteration is exhausted.
type Page struct {
	Items      []Entity
	Total      *int64
	NextCursor string
}

// ListFilter is a conjunction of predicates over one entity kind. The zero
// value of each optional field means "no constraint". Archived entities are
// excluded unless IncludeArchived is set.
type ListFilter struct {
	Kind            Kind
	Owner           *OwnerRef
	Statuses        []Status
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Search          string
	IncludeArchived bool
}

// Validate rejects structurally malformed filters with InvalidFilterError.
// An empty result set is never an error; this only guards input shape.
func (f ListFilter) Validate() error {
	fields := map[string]string{}

	def, ok := KindDef(f.Kind)
	if !ok {
		fields["kind"] = fmt.Sprintf("unknown entity kind %q", f.Kind)
	}

	if f.Owner != nil && !ValidOwnerKind(f.Owner.Kind) {
		fields["owner"] = fmt.Sprintf("unknown owner kind %q", f.Owner.Kind)
	}

	if f.CreatedFrom != nil && f.CreatedTo != nil && f.CreatedFrom.After(*f.CreatedTo) {
		fields["created"] = "range start is after range end"
	}

	if ok {
		known := def.Statuses()
		for _, s := range f.Statuses {
			found := false
			for _, k := range known {
				if k == s {
					found = true
					break
				}
			}
			if !found {
				fields["status"] = fmt.Sprintf("status %q is not defined for %s", s, f.Kind)
			}
		}
	}

	if len(fields) > 0 {
		return &InvalidFilterError{ValidationError{Fields: fields}}
	}
	return nil
}

// Cursor is the decoded form of the opaque pagination token: the sort key
// of the last-seen row.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// Encode serializes the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%s|%d", c.CreatedAt.UTC().Format(time.RFC3339), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode. Malformed tokens are an
// InvalidFilterError, not a server fault.
func DecodeCursor(token string) (Cursor, error) {
	bad := func() error {
		return &InvalidFilterError{ValidationError{Fields: map[string]string{"cursor": "malformed cursor token"}}}
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, bad()
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, bad()
	}
	at, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return Cursor{}, bad()
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Cursor{}, bad()
	}
	return Cursor{CreatedAt: at, ID: id}, nil
}
