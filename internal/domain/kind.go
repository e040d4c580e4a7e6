package domain

// Kind identifies one of the domain record types sharing the generic
// lifecycle contract.
type Kind string

const (
	KindNote              Kind = "notes"
	KindReview            Kind = "reviews"
	KindContract          Kind = "contracts"
	KindPayment           Kind = "payments"
	KindCertification     Kind = "certifications"
	KindPerformanceRecord Kind = "performance-records"
	KindInsurance         Kind = "insurances"
	KindSpecialization    Kind = "specializations"
	KindTimeOff           Kind = "time-off"
	KindTraining          Kind = "trainings"
	KindBenefit           Kind = "benefits"
	KindInvoice           Kind = "invoices"
	KindLocation          Kind = "locations"
	KindCommunication     Kind = "communications"
)

// FieldType describes how a payload field is validated and stored.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date" // RFC 3339
)

// FieldSpec declares one payload field of an entity kind.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
	// Unique enforces kind-wide uniqueness at write time; violations under
	// race surface as ConflictError.
	Unique bool
}

// RestorePolicy determines which status unarchive restores.
type RestorePolicy string

const (
	// RestorePrior restores the status recorded at archive time.
	RestorePrior RestorePolicy = "prior"
	// RestoreActive always restores to active regardless of prior status.
	RestoreActive RestorePolicy = "active"
)

// ExpiryRule describes the time-based transition applied by the periodic
// sweep: entities in one of From whose DateField has passed receive Op.
type ExpiryRule struct {
	DateField string
	From      []Status
	Op        Operation
}

// Definition is the full lifecycle declaration of one entity kind. The
// transition tables are domain knowledge consumed by the FSM adapter; the
// payload and search specs are consumed by validation and the query layer.
type Definition struct {
	Kind        Kind
	Initial     Status
	Transitions []Transition
	// Terminal statuses have no outgoing edges and cannot be archived.
	Terminal []Status
	// Unarchive selects the restore target when leaving archived.
	Unarchive RestorePolicy
	Payload   []FieldSpec
	// Searchable names the payload fields matched by free-text search.
	Searchable []string
	Expiry     *ExpiryRule
}

// IsTerminal reports whether s is a terminal status for this kind.
func (d Definition) IsTerminal(s Status) bool {
	for _, t := range d.Terminal {
		if t == s {
			return true
		}
	}
	return false
}

// Field returns the payload spec for the named field.
func (d Definition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Payload {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Edge returns the destination for (current, op), if the table defines one.
func (d Definition) Edge(current Status, op Operation) (Status, bool) {
	for _, t := range d.Transitions {
		if t.Src == current && t.Op == op {
			return t.Dst, true
		}
	}
	return "", false
}

// Targets returns every destination status the operation can reach in this
// kind's table. Used by the idempotent no-op check.
func (d Definition) Targets(op Operation) []Status {
	var out []Status
	for _, t := range d.Transitions {
		if t.Op == op {
			out = append(out, t.Dst)
		}
	}
	return out
}

// Statuses returns every status reachable in this kind's table, including
// the initial status and archived.
func (d Definition) Statuses() []Status {
	seen := map[Status]bool{d.Initial: true, StatusArchived: true}
	out := []Status{d.Initial, StatusArchived}
	add := func(s Status) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, t := range d.Transitions {
		add(t.Src)
		add(t.Dst)
	}
	for _, s := range d.Terminal {
		add(s)
	}
	return out
}

// Kinds is the registry of all entity kinds and their lifecycle definitions.
var Kinds = map[Kind]Definition{
	KindNote:              noteDef(),
	KindReview:            reviewDef(),
	KindContract:          termDef(KindContract, contractPayload, []string{"title"}),
	KindPayment:           paymentDef(),
	KindCertification:     verificationDef(KindCertification, certificationPayload, []string{"name", "authority"}),
	KindPerformanceRecord: approvalDef(KindPerformanceRecord, performancePayload, []string{"summary"}),
	KindInsurance:         verificationDef(KindInsurance, insurancePayload, []string{"policy_number"}),
	KindSpecialization:    toggleDef(KindSpecialization, specializationPayload, []string{"name"}),
	KindTimeOff:           timeOffDef(),
	KindTraining:          approvalDef(KindTraining, trainingPayload, []string{"title"}),
	KindBenefit:           termDef(KindBenefit, benefitPayload, []string{"name"}),
	KindInvoice:           invoiceDef(),
	KindLocation:          toggleDef(KindLocation, locationPayload, []string{"name", "city"}),
	KindCommunication:     communicationDef(),
}

// KindDef looks up a kind's definition.
func KindDef(k Kind) (Definition, bool) {
	d, ok := Kinds[k]
	return d, ok
}

// --- Payload specs ---

var (
	notePayload = []FieldSpec{
		{Name: "subject", Type: FieldString},
		{Name: "body", Type: FieldString, Required: true},
	}
	reviewPayload = []FieldSpec{
		{Name: "rating", Type: FieldNumber, Required: true},
		{Name: "title", Type: FieldString},
		{Name: "body", Type: FieldString},
	}
	contractPayload = []FieldSpec{
		{Name: "title", Type: FieldString, Required: true},
		{Name: "value", Type: FieldNumber},
		{Name: "starts_at", Type: FieldDate},
		{Name: "ends_at", Type: FieldDate},
	}
	paymentPayload = []FieldSpec{
		{Name: "amount", Type: FieldNumber, Required: true},
		{Name: "currency", Type: FieldString, Required: true},
		{Name: "reference", Type: FieldString},
	}
	certificationPayload = []FieldSpec{
		{Name: "name", Type: FieldString, Required: true},
		{Name: "authority", Type: FieldString},
		{Name: "expires_at", Type: FieldDate},
	}
	performancePayload = []FieldSpec{
		{Name: "period", Type: FieldString},
		{Name: "score", Type: FieldNumber, Required: true},
		{Name: "summary", Type: FieldString},
	}
	insurancePayload = []FieldSpec{
		{Name: "policy_number", Type: FieldString, Required: true},
		{Name: "coverage", Type: FieldNumber},
		{Name: "expires_at", Type: FieldDate, Required: true},
	}
	specializationPayload = []FieldSpec{
		{Name: "name", Type: FieldString, Required: true},
	}
	timeOffPayload = []FieldSpec{
		{Name: "starts_at", Type: FieldDate, Required: true},
		{Name: "ends_at", Type: FieldDate, Required: true},
		{Name: "reason", Type: FieldString},
	}
	trainingPayload = []FieldSpec{
		{Name: "title", Type: FieldString, Required: true},
		{Name: "hours", Type: FieldNumber},
	}
	benefitPayload = []FieldSpec{
		{Name: "name", Type: FieldString, Required: true},
		{Name: "monthly_cost", Type: FieldNumber},
		{Name: "ends_at", Type: FieldDate},
	}
	invoicePayload = []FieldSpec{
		{Name: "number", Type: FieldString, Required: true, Unique: true},
		{Name: "amount", Type: FieldNumber, Required: true},
		{Name: "due_at", Type: FieldDate, Required: true},
	}
	locationPayload = []FieldSpec{
		{Name: "name", Type: FieldString, Required: true},
		{Name: "city", Type: FieldString},
	}
	communicationPayload = []FieldSpec{
		{Name: "channel", Type: FieldString, Required: true},
		{Name: "subject", Type: FieldString},
		{Name: "sent_count", Type: FieldNumber},
		{Name: "delivered_count", Type: FieldNumber},
	}
)

// --- Table archetypes ---
//
// The fourteen kinds share five transition-table shapes. Each builder
// returns a complete Definition; kind-specific builders below adjust the
// shared shape where a kind deviates.

// approvalDef: draft → pending → approved → active, with suspension and
// time-based expiry. Rejected and expired are terminal.
func approvalDef(k Kind, payload []FieldSpec, searchable []string) Definition {
	return Definition{
		Kind:    k,
		Initial: StatusDraft,
		Transitions: []Transition{
			{Op: OpSubmit, Src: StatusDraft, Dst: StatusPending},
			{Op: OpApprove, Src: StatusPending, Dst: StatusApproved},
			{Op: OpReject, Src: StatusPending, Dst: StatusRejected},
			{Op: OpActivate, Src: StatusApproved, Dst: StatusActive},
			{Op: OpSuspend, Src: StatusActive, Dst: StatusSuspended},
			{Op: OpActivate, Src: StatusSuspended, Dst: StatusActive},
			{Op: OpExpire, Src: StatusActive, Dst: StatusExpired},
			{Op: OpExpire, Src: StatusApproved, Dst: StatusExpired},
		},
		Terminal:   []Status{StatusRejected, StatusExpired},
		Unarchive:  RestorePrior,
		Payload:    payload,
		Searchable: searchable,
	}
}

// termDef: contract-shaped lifecycle with renewal and termination. Renew is
// an explicit self-edge on active so each renewal is a real, audited
// transition.
func termDef(k Kind, payload []FieldSpec, searchable []string) Definition {
	return Definition{
		Kind:    k,
		Initial: StatusDraft,
		Transitions: []Transition{
			{Op: OpSubmit, Src: StatusDraft, Dst: StatusPending},
			{Op: OpApprove, Src: StatusPending, Dst: StatusActive},
			{Op: OpReject, Src: StatusPending, Dst: StatusRejected},
			{Op: OpRenew, Src: StatusActive, Dst: StatusActive},
			{Op: OpSuspend, Src: StatusActive, Dst: StatusSuspended},
			{Op: OpActivate, Src: StatusSuspended, Dst: StatusActive},
			{Op: OpTerminate, Src: StatusActive, Dst: StatusTerminated},
			{Op: OpTerminate, Src: StatusSuspended, Dst: StatusTerminated},
			{Op: OpExpire, Src: StatusActive, Dst: StatusExpired},
			{Op: OpRenew, Src: StatusExpired, Dst: StatusActive},
		},
		Terminal:   []Status{StatusRejected, StatusTerminated},
		Unarchive:  RestorePrior,
		Payload:    payload,
		Searchable: searchable,
		Expiry:     &ExpiryRule{DateField: "ends_at", From: []Status{StatusActive}, Op: OpExpire},
	}
}

// verificationDef: document-shaped lifecycle (certifications, insurance
// policies) that toggles between unverified and verified and expires on a
// payload date.
func verificationDef(k Kind, payload []FieldSpec, searchable []string) Definition {
	return Definition{
		Kind:    k,
		Initial: StatusUnverified,
		Transitions: []Transition{
			{Op: OpVerify, Src: StatusUnverified, Dst: StatusVerified},
			{Op: OpUnverify, Src: StatusVerified, Dst: StatusUnverified},
			{Op: OpExpire, Src: StatusVerified, Dst: StatusExpired},
			{Op: OpRenew, Src: StatusExpired, Dst: StatusVerified},
		},
		Unarchive:  RestorePrior,
		Payload:    payload,
		Searchable: searchable,
		Expiry:     &ExpiryRule{DateField: "expires_at", From: []Status{StatusVerified}, Op: OpExpire},
	}
}

// toggleDef: records that are simply switched on and off. Unarchive always
// restores to active for these kinds.
func toggleDef(k Kind, payload []FieldSpec, searchable []string) Definition {
	return Definition{
		Kind:    k,
		Initial: StatusActive,
		Transitions: []Transition{
			{Op: OpDeactivate, Src: StatusActive, Dst: StatusSuspended},
			{Op: OpActivate, Src: StatusSuspended, Dst: StatusActive},
		},
		Unarchive:  RestoreActive,
		Payload:    payload,
		Searchable: searchable,
	}
}

func noteDef() Definition {
	return Definition{
		Kind:       KindNote,
		Initial:    StatusActive,
		Unarchive:  RestorePrior,
		Payload:    notePayload,
		Searchable: []string{"subject", "body"},
	}
}

// reviewDef: moderation-shaped lifecycle. Reviews are born pending and
// rejection is final.
func reviewDef() Definition {
	return Definition{
		Kind:    KindReview,
		Initial: StatusPending,
		Transitions: []Transition{
			{Op: OpApprove, Src: StatusPending, Dst: StatusApproved},
			{Op: OpReject, Src: StatusPending, Dst: StatusRejected},
		},
		Terminal:   []Status{StatusRejected},
		Unarchive:  RestorePrior,
		Payload:    reviewPayload,
		Searchable: []string{"title", "body"},
	}
}

func paymentDef() Definition {
	return Definition{
		Kind:    KindPayment,
		Initial: StatusPending,
		Transitions: []Transition{
			{Op: OpApprove, Src: StatusPending, Dst: StatusApproved},
			{Op: OpReject, Src: StatusPending, Dst: StatusRejected},
			{Op: OpCancel, Src: StatusPending, Dst: StatusCancelled},
		},
		Terminal:   []Status{StatusRejected, StatusCancelled},
		Unarchive:  RestorePrior,
		Payload:    paymentPayload,
		Searchable: []string{"reference"},
	}
}

func timeOffDef() Definition {
	d := approvalDef(KindTimeOff, timeOffPayload, nil)
	d.Transitions = append(d.Transitions,
		Transition{Op: OpCancel, Src: StatusPending, Dst: StatusCancelled},
		Transition{Op: OpCancel, Src: StatusApproved, Dst: StatusCancelled},
	)
	d.Terminal = append(d.Terminal, StatusCancelled)
	d.Expiry = &ExpiryRule{DateField: "ends_at", From: []Status{StatusApproved, StatusActive}, Op: OpExpire}
	return d
}

// invoiceDef: billing lifecycle. The sweep marks unpaid invoices overdue
// once due_at has passed.
func invoiceDef() Definition {
	return Definition{
		Kind:    KindInvoice,
		Initial: StatusPending,
		Transitions: []Transition{
			{Op: OpMarkPaid, Src: StatusPending, Dst: StatusPaid},
			{Op: OpMarkOverdue, Src: StatusPending, Dst: StatusOverdue},
			{Op: OpMarkPaid, Src: StatusOverdue, Dst: StatusPaid},
			{Op: OpCancel, Src: StatusPending, Dst: StatusCancelled},
			{Op: OpCancel, Src: StatusOverdue, Dst: StatusCancelled},
		},
		Terminal:   []Status{StatusCancelled},
		Unarchive:  RestorePrior,
		Payload:    invoicePayload,
		Searchable: []string{"number"},
		Expiry:     &ExpiryRule{DateField: "due_at", From: []Status{StatusPending}, Op: OpMarkOverdue},
	}
}

func communicationDef() Definition {
	return Definition{
		Kind:       KindCommunication,
		Initial:    StatusActive,
		Unarchive:  RestorePrior,
		Payload:    communicationPayload,
		Searchable: []string{"subject"},
	}
}
