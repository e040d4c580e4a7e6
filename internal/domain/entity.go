package domain

import (
	"fmt"
	"time"
)

// OwnerKind identifies the parent aggregate type an entity belongs to.
type OwnerKind string

const (
	OwnerCustomer OwnerKind = "customer"
	OwnerEmployee OwnerKind = "employee"
	OwnerProvider OwnerKind = "provider"
)

// ValidOwnerKind reports whether k is a known owner kind.
func ValidOwnerKind(k OwnerKind) bool {
	return k == OwnerCustomer || k == OwnerEmployee || k == OwnerProvider
}

// OwnerRef points at the parent aggregate. Required at creation, immutable
// afterwards.
type OwnerRef struct {
	Kind OwnerKind
	ID   int64
}

func (o OwnerRef) IsZero() bool { return o.ID == 0 }

// Owner is the minimal parent-aggregate record entities attach to. It also
// doubles as the actor directory: transition actors are owners (employees,
// typically) and the DTO projection resolves their display names from here.
type Owner struct {
	ID        int64
	Kind      OwnerKind
	Name      string
	CreatedAt time.Time
}

// Actor identifies who invoked a lifecycle operation. OwnerID 0 means the
// system itself (the periodic sweep).
type Actor struct {
	OwnerID int64
}

// SystemActor is the actor recorded for sweep-driven transitions.
var SystemActor = Actor{}

func (a Actor) IsSystem() bool { return a.OwnerID == 0 }

// Payload holds the kind-specific structured fields of an entity. Shape and
// types are validated against the kind's FieldSpec list before anything
// reaches the store.
type Payload map[string]any

// Clone returns a shallow copy; payload values are scalars.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with the fields of other applied on top.
func (p Payload) Merge(other Payload) Payload {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Number reads a numeric payload field, tolerating the float64/int types
// JSON decoding produces. Missing or non-numeric fields read as 0.
func (p Payload) Number(field string) float64 {
	switch v := p[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Entity is the generic lifecycle-managed record, instantiated per kind.
type Entity struct {
	ID    int64
	Kind  Kind
	Owner OwnerRef

	Status Status
	// PriorStatus is recorded while the entity is archived so unarchive can
	// restore it; nil otherwise.
	PriorStatus     *Status
	StatusChangedAt time.Time
	StatusChangedBy Actor

	Payload Payload

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsArchived reports whether the entity is currently archived. Archived
// entities stay readable by ID but drop out of default list and aggregate
// views.
func (e Entity) IsArchived() bool { return e.Status == StatusArchived }

// NewEntity builds an unsaved entity of the given kind in its initial
// status, validating the owner reference and payload shape.
func NewEntity(kind Kind, owner OwnerRef, payload Payload, actor Actor) (Entity, error) {
	def, ok := KindDef(kind)
	if !ok {
		return Entity{}, &ValidationError{Fields: map[string]string{"kind": fmt.Sprintf("unknown entity kind %q", kind)}}
	}
	if owner.IsZero() || !ValidOwnerKind(owner.Kind) {
		return Entity{}, &ValidationError{Fields: map[string]string{"owner": "owner reference is required"}}
	}
	if err := ValidatePayload(def, payload, true); err != nil {
		return Entity{}, err
	}

	now := time.Now().UTC()
	return Entity{
		Kind:            kind,
		Owner:           owner,
		Status:          def.Initial,
		StatusChangedAt: now,
		StatusChangedBy: actor,
		Payload:         NormalizeDates(def, payload),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NormalizeDates returns a copy of the payload with date fields rewritten
// to canonical UTC Z form. The store compares date strings lexicographically,
// so an offset-bearing RFC 3339 value would order against Z-suffixed ones by
// its local clock reading, hours off its actual instant.
func NormalizeDates(def Definition, payload Payload) Payload {
	out := payload.Clone()
	for _, spec := range def.Payload {
		if spec.Type != FieldDate {
			continue
		}
		s, ok := out[spec.Name].(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			out[spec.Name] = ts.UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	return out
}

// ValidatePayload checks a payload against the kind's field specs. With
// full set, required fields must be present; partial updates pass full =
// false so omitted fields are fine but unknown names and type mismatches
// are still rejected.
func ValidatePayload(def Definition, payload Payload, full bool) error {
	fields := map[string]string{}

	for name := range payload {
		if _, ok := def.Field(name); !ok {
			fields[name] = "unknown field"
		}
	}

	for _, spec := range def.Payload {
		v, present := payload[spec.Name]
		if !present || v == nil {
			if full && spec.Required {
				fields[spec.Name] = "required"
			}
			continue
		}
		if msg := checkFieldType(spec, v); msg != "" {
			fields[spec.Name] = msg
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkFieldType(spec FieldSpec, v any) string {
	switch spec.Type {
	case FieldString:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case FieldNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return "must be a number"
		}
	case FieldDate:
		s, ok := v.(string)
		if !ok {
			return "must be an RFC 3339 date string"
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return "must be an RFC 3339 date string"
		}
	}
	return ""
}
