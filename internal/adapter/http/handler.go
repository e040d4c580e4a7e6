package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/commerceiq/internal/app"
	"github.com/neomorfeo/commerceiq/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// OwnerResponse is the API representation of a parent aggregate.
type OwnerResponse struct {
	ID        int64  `json:"id" doc:"Unique identifier"`
	Kind      string `json:"kind" doc:"Owner kind (customer, employee, provider)"`
	Name      string `json:"name" doc:"Display name"`
	CreatedAt string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
}

func toOwnerResponse(o domain.Owner) OwnerResponse {
	return OwnerResponse{
		ID:        o.ID,
		Kind:      string(o.Kind),
		Name:      o.Name,
		CreatedAt: o.CreatedAt.Format(timeFormat),
	}
}

// EntityResponse is the API representation of an entity. Actor IDs are
// resolved to display names by the projector before they get here.
type EntityResponse struct {
	ID              int64          `json:"id" doc:"Unique identifier"`
	Kind            string         `json:"kind" doc:"Entity kind"`
	OwnerKind       string         `json:"owner_kind" doc:"Kind of the owning aggregate"`
	OwnerID         int64          `json:"owner_id" doc:"ID of the owning aggregate"`
	Status          string         `json:"status" doc:"Lifecycle status"`
	StatusChangedAt string         `json:"status_changed_at" doc:"When the status last changed (ISO 8601)"`
	StatusChangedBy string         `json:"status_changed_by" doc:"Display name of the last status-changing actor"`
	Payload         map[string]any `json:"payload" doc:"Kind-specific fields"`
	CreatedAt       string         `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt       string         `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toEntityResponse(v app.EntityView) EntityResponse {
	return EntityResponse{
		ID:              v.ID,
		Kind:            string(v.Kind),
		OwnerKind:       string(v.OwnerKind),
		OwnerID:         v.OwnerID,
		Status:          string(v.Status),
		StatusChangedAt: v.StatusChangedAt.Format(timeFormat),
		StatusChangedBy: v.StatusChangedBy,
		Payload:         v.Payload,
		CreatedAt:       v.CreatedAt.Format(timeFormat),
		UpdatedAt:       v.UpdatedAt.Format(timeFormat),
	}
}

// AuditResponse is one audit trail record.
type AuditResponse struct {
	Operation string `json:"operation" doc:"Lifecycle operation"`
	Actor     string `json:"actor" doc:"Display name of the actor"`
	From      string `json:"from" doc:"Status before the operation"`
	To        string `json:"to" doc:"Status after the operation"`
	Reason    string `json:"reason,omitempty" doc:"Free-text reason, if given"`
	Noop      bool   `json:"noop,omitempty" doc:"True when the operation was an idempotent no-op"`
	At        string `json:"at" doc:"When the operation was applied (ISO 8601)"`
}

func toAuditResponse(v app.AuditView) AuditResponse {
	return AuditResponse{
		Operation: string(v.Op),
		Actor:     v.Actor,
		From:      string(v.From),
		To:        string(v.To),
		Reason:    v.Reason,
		Noop:      v.Noop,
		At:        v.At.Format(timeFormat),
	}
}

// FilterParams are the query parameters shared by list and stats endpoints.
type FilterParams struct {
	Status          string `query:"status" required:"false" doc:"Comma-separated status filter"`
	Search          string `query:"search" required:"false" doc:"Case-insensitive free-text search over the kind's searchable fields"`
	OwnerKind       string `query:"owner_kind" required:"false" doc:"Owner kind, paired with owner_id"`
	OwnerID         int64  `query:"owner_id" required:"false" doc:"Owner ID, paired with owner_kind"`
	CreatedFrom     string `query:"created_from" required:"false" doc:"Creation time lower bound (ISO 8601)"`
	CreatedTo       string `query:"created_to" required:"false" doc:"Creation time upper bound (ISO 8601)"`
	IncludeArchived bool   `query:"include_archived" required:"false" doc:"Include archived entities"`
}

// toFilter assembles the domain filter. Range and kind validation happens in
// the domain; only parse-level problems are reported here.
func (p FilterParams) toFilter(kind string) (domain.ListFilter, error) {
	f := domain.ListFilter{
		Kind:            domain.Kind(kind),
		Search:          p.Search,
		IncludeArchived: p.IncludeArchived,
	}

	if p.Status != "" {
		for _, s := range strings.Split(p.Status, ",") {
			f.Statuses = append(f.Statuses, domain.Status(strings.TrimSpace(s)))
		}
	}

	if p.OwnerKind != "" || p.OwnerID != 0 {
		if p.OwnerKind == "" || p.OwnerID == 0 {
			return domain.ListFilter{}, &domain.InvalidFilterError{ValidationError: domain.ValidationError{
				Fields: map[string]string{"owner": "owner_kind and owner_id must be given together"},
			}}
		}
		f.Owner = &domain.OwnerRef{Kind: domain.OwnerKind(p.OwnerKind), ID: p.OwnerID}
	}

	if p.CreatedFrom != "" {
		at, err := time.Parse(time.RFC3339, p.CreatedFrom)
		if err != nil {
			return domain.ListFilter{}, &domain.InvalidFilterError{ValidationError: domain.ValidationError{
				Fields: map[string]string{"created_from": "must be an ISO 8601 timestamp"},
			}}
		}
		f.CreatedFrom = &at
	}
	if p.CreatedTo != "" {
		at, err := time.Parse(time.RFC3339, p.CreatedTo)
		if err != nil {
			return domain.ListFilter{}, &domain.InvalidFilterError{ValidationError: domain.ValidationError{
				Fields: map[string]string{"created_to": "must be an ISO 8601 timestamp"},
			}}
		}
		f.CreatedTo = &at
	}

	return f, nil
}

// --- Owners ---

type CreateOwnerInput struct {
	Body struct {
		Kind string `json:"kind" enum:"customer,employee,provider" doc:"Owner kind"`
		Name string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
	}
}

type CreateOwnerOutput struct {
	Body OwnerResponse
}

type GetOwnerInput struct {
	ID int64 `path:"id" doc:"Owner ID"`
}

type GetOwnerOutput struct {
	Body OwnerResponse
}

// --- Entities ---

type CreateEntityInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	Body struct {
		OwnerKind string         `json:"owner_kind" enum:"customer,employee,provider" doc:"Kind of the owning aggregate"`
		OwnerID   int64          `json:"owner_id" doc:"ID of the owning aggregate"`
		Payload   map[string]any `json:"payload" doc:"Kind-specific fields"`
		ActorID   int64          `json:"actor_id,omitempty" doc:"Owner ID of the acting user; 0 for system"`
	}
}

type CreateEntityOutput struct {
	Body EntityResponse
}

type GetEntityInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	ID   int64  `path:"id" doc:"Entity ID"`
}

type GetEntityOutput struct {
	Body EntityResponse
}

type UpdateEntityInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	ID   int64  `path:"id" doc:"Entity ID"`
	Body struct {
		Payload map[string]any `json:"payload" doc:"Fields to merge into the payload"`
	}
}

type UpdateEntityOutput struct {
	Body EntityResponse
}

type DeleteEntityInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	ID   int64  `path:"id" doc:"Entity ID"`
}

type ListEntitiesInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	FilterParams
	Page    int    `query:"page" required:"false" doc:"1-based page number (offset modes)"`
	PerPage int    `query:"per_page" required:"false" doc:"Page size, capped at 100; defaults to 15"`
	Mode    string `query:"mode" required:"false" doc:"Pagination mode; defaults to offset"`
	Cursor  string `query:"cursor" required:"false" doc:"Opaque cursor from a previous page (cursor mode)"`
}

type ListEntitiesOutput struct {
	Body struct {
		Items      []EntityResponse `json:"items" doc:"One page of entities, newest first"`
		Total      *int64           `json:"total,omitempty" doc:"Total matching count (offset mode only)"`
		NextCursor string           `json:"next_cursor,omitempty" doc:"Cursor for the next page (cursor mode)"`
	}
}

type TransitionInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	ID   int64  `path:"id" doc:"Entity ID"`
	Body struct {
		Operation string `json:"operation" doc:"Lifecycle operation to apply"`
		ActorID   int64  `json:"actor_id,omitempty" doc:"Owner ID of the acting user; 0 for system"`
		Reason    string `json:"reason,omitempty" doc:"Free-text reason recorded in the audit trail"`
	}
}

type TransitionOutput struct {
	Body EntityResponse
}

type HistoryInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	ID   int64  `path:"id" doc:"Entity ID"`
}

type HistoryOutput struct {
	Body []AuditResponse
}

// --- Stats ---

type CountInput struct {
	Kind string `path:"kind" doc:"Entity kind"`
	FilterParams
}

type CountOutput struct {
	Body struct {
		Count int64 `json:"count"`
	}
}

type SumInput struct {
	Kind  string `path:"kind" doc:"Entity kind"`
	Field string `query:"field" doc:"Numeric payload field to aggregate"`
	FilterParams
}

type SumOutput struct {
	Body struct {
		Field string  `json:"field"`
		Sum   float64 `json:"sum"`
	}
}

type AverageInput struct {
	Kind  string `path:"kind" doc:"Entity kind"`
	Field string `query:"field" doc:"Numeric payload field to aggregate"`
	FilterParams
}

type AverageOutput struct {
	Body struct {
		Field   string  `json:"field"`
		Average float64 `json:"average"`
	}
}

type RateInput struct {
	Kind        string `path:"kind" doc:"Entity kind"`
	Numerator   string `query:"numerator" required:"false" doc:"Numerator payload field (field-rate form)"`
	Denominator string `query:"denominator" required:"false" doc:"Denominator payload field (field-rate form)"`
	Status      string `query:"of_status" required:"false" doc:"Status whose share of the view to compute (status-rate form)"`
	FilterParams
}

type RateOutput struct {
	Body struct {
		Rate float64 `json:"rate"`
	}
}

type TrendInput struct {
	Kind   string `path:"kind" doc:"Entity kind"`
	Metric string `query:"metric" required:"false" doc:"Per-bucket metric; defaults to count"`
	Field  string `query:"field" required:"false" doc:"Numeric payload field (sum metric)"`
	Period string `query:"period" enum:"day,week,month,quarter,year" doc:"Bucket size"`
	From   string `query:"from" doc:"Series start (ISO 8601)"`
	To     string `query:"to" doc:"Series end (ISO 8601)"`
	FilterParams
}

type TrendOutput struct {
	Body struct {
		Points []TrendPointResponse `json:"points" doc:"Gapless bucket series"`
	}
}

type TrendPointResponse struct {
	Bucket string  `json:"bucket" doc:"Bucket label, e.g. 2026-06 or 2026-W23"`
	Value  float64 `json:"value"`
}

// Register adds all API routes to the Huma API.
func Register(api huma.API, svc *app.EntityService, stats *app.StatsService, proj *app.Projector) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-owner",
		Method:        http.MethodPost,
		Path:          "/api/v1/owners",
		Summary:       "Register an owner",
		Tags:          []string{"Owners"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateOwnerInput) (*CreateOwnerOutput, error) {
		owner, err := svc.CreateOwner(ctx, domain.OwnerKind(input.Body.Kind), input.Body.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateOwnerOutput{Body: toOwnerResponse(owner)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-owner",
		Method:      http.MethodGet,
		Path:        "/api/v1/owners/{id}",
		Summary:     "Get an owner by ID",
		Tags:        []string{"Owners"},
	}, func(ctx context.Context, input *GetOwnerInput) (*GetOwnerOutput, error) {
		owner, err := svc.GetOwner(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetOwnerOutput{Body: toOwnerResponse(owner)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-entity",
		Method:        http.MethodPost,
		Path:          "/api/v1/{kind}",
		Summary:       "Create an entity in its kind's initial status",
		Tags:          []string{"Entities"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateEntityInput) (*CreateEntityOutput, error) {
		owner := domain.OwnerRef{Kind: domain.OwnerKind(input.Body.OwnerKind), ID: input.Body.OwnerID}
		actor := domain.Actor{OwnerID: input.Body.ActorID}

		e, err := svc.Create(ctx, domain.Kind(input.Kind), owner, domain.Payload(input.Body.Payload), actor)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateEntityOutput{Body: toEntityResponse(proj.Entity(ctx, e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}/{id}",
		Summary:     "Get an entity by ID",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *GetEntityInput) (*GetEntityOutput, error) {
		if err := verifyKind(input.Kind); err != nil {
			return nil, err
		}
		e, err := svc.Get(ctx, domain.Kind(input.Kind), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetEntityOutput{Body: toEntityResponse(proj.Entity(ctx, e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-entity",
		Method:      http.MethodPatch,
		Path:        "/api/v1/{kind}/{id}",
		Summary:     "Merge fields into an entity's payload",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *UpdateEntityInput) (*UpdateEntityOutput, error) {
		e, err := svc.UpdatePayload(ctx, domain.Kind(input.Kind), input.ID, domain.Payload(input.Body.Payload))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &UpdateEntityOutput{Body: toEntityResponse(proj.Entity(ctx, e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-entity",
		Method:        http.MethodDelete,
		Path:          "/api/v1/{kind}/{id}",
		Summary:       "Hard-delete an entity and its history",
		Tags:          []string{"Entities"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteEntityInput) (*struct{}, error) {
		if err := verifyKind(input.Kind); err != nil {
			return nil, err
		}
		if err := svc.Delete(ctx, domain.Kind(input.Kind), input.ID); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-entities",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}",
		Summary:     "List entities, newest first",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *ListEntitiesInput) (*ListEntitiesOutput, error) {
		f, err := input.toFilter(input.Kind)
		if err != nil {
			return nil, toHumaError(err)
		}

		page, err := svc.List(ctx, f, domain.PageRequest{
			Mode:    domain.PageMode(input.Mode),
			Page:    input.Page,
			PerPage: input.PerPage,
			Cursor:  input.Cursor,
		})
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &ListEntitiesOutput{}
		out.Body.Items = make([]EntityResponse, 0, len(page.Items))
		for _, v := range proj.Entities(ctx, page.Items) {
			out.Body.Items = append(out.Body.Items, toEntityResponse(v))
		}
		out.Body.Total = page.Total
		out.Body.NextCursor = page.NextCursor
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-entity",
		Method:      http.MethodPost,
		Path:        "/api/v1/{kind}/{id}/transitions",
		Summary:     "Apply a lifecycle operation",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *TransitionInput) (*TransitionOutput, error) {
		e, err := svc.Apply(ctx, domain.Kind(input.Kind), input.ID,
			domain.Operation(input.Body.Operation),
			domain.Actor{OwnerID: input.Body.ActorID},
			input.Body.Reason)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TransitionOutput{Body: toEntityResponse(proj.Entity(ctx, e))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}/{id}/history",
		Summary:     "Get an entity's audit trail, oldest first",
		Tags:        []string{"Entities"},
	}, func(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
		if err := verifyKind(input.Kind); err != nil {
			return nil, err
		}
		records, err := svc.History(ctx, domain.Kind(input.Kind), input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := make([]AuditResponse, 0, len(records))
		for _, v := range proj.History(ctx, records) {
			out = append(out, toAuditResponse(v))
		}
		return &HistoryOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-count",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}/stats/count",
		Summary:     "Count entities matching a filter",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *CountInput) (*CountOutput, error) {
		f, err := input.toFilter(input.Kind)
		if err != nil {
			return nil, toHumaError(err)
		}
		count, err := stats.Count(ctx, f)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &CountOutput{}
		out.Body.Count = count
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-sum",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}/stats/sum",
		Summary:     "Sum a numeric payload field",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *SumInput) (*SumOutput, error) {
		f, err := input.toFilter(input.Kind)
		if err != nil {
			return nil, toHumaError(err)
		}
		sum, err := stats.Sum(ctx, input.Field, f)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &SumOutput{}
		out.Body.Field = input.Field
		out.Body.Sum = sum
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-average",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}/stats/average",
		Summary:     "Average a numeric payload field",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *AverageInput) (*AverageOutput, error) {
		f, err := input.toFilter(input.Kind)
		if err != nil {
			return nil, toHumaError(err)
		}
		avg, err := stats.Average(ctx, input.Field, f)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &AverageOutput{}
		out.Body.Field = input.Field
		out.Body.Average = avg
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-rate",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}/stats/rate",
		Summary:     "Compute a ratio over the filtered view",
		Description: "Either numerator and denominator payload fields, or of_status for the share of entities in one status.",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *RateInput) (*RateOutput, error) {
		f, err := input.toFilter(input.Kind)
		if err != nil {
			return nil, toHumaError(err)
		}

		var rate float64
		switch {
		case input.Status != "":
			rate, err = stats.StatusRate(ctx, f, domain.Status(input.Status))
		case input.Numerator != "" && input.Denominator != "":
			rate, err = stats.Rate(ctx, input.Numerator, input.Denominator, f)
		default:
			return nil, huma.Error422UnprocessableEntity("either of_status or numerator and denominator are required")
		}
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &RateOutput{}
		out.Body.Rate = rate
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "entity-trend",
		Method:      http.MethodGet,
		Path:        "/api/v1/{kind}/stats/trend",
		Summary:     "Bucketed time series over the filtered view",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *TrendInput) (*TrendOutput, error) {
		f, err := input.toFilter(input.Kind)
		if err != nil {
			return nil, toHumaError(err)
		}

		from, err := time.Parse(time.RFC3339, input.From)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("from must be an ISO 8601 timestamp")
		}
		to, err := time.Parse(time.RFC3339, input.To)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("to must be an ISO 8601 timestamp")
		}

		metric := domain.TrendMetric(input.Metric)
		if input.Metric == "" {
			metric = domain.TrendCount
		}

		points, err := stats.Trend(ctx, domain.TrendSpec{
			Metric: metric,
			Field:  input.Field,
			Period: domain.Period(input.Period),
			From:   from,
			To:     to,
		}, f)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &TrendOutput{}
		out.Body.Points = make([]TrendPointResponse, len(points))
		for i, p := range points {
			out.Body.Points[i] = TrendPointResponse{Bucket: p.Bucket, Value: p.Value}
		}
		return out, nil
	})
}

// verifyKind guards endpoints whose service path does not validate the kind
// itself. An unknown kind means the collection does not exist.
func verifyKind(kind string) error {
	if _, ok := domain.KindDef(domain.Kind(kind)); !ok {
		return huma.Error404NotFound("unknown entity kind")
	}
	return nil
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrEntityNotFound) {
		return huma.Error404NotFound("entity not found")
	}
	if errors.Is(err, domain.ErrOwnerNotFound) {
		return huma.Error404NotFound("owner not found")
	}

	var cErr *domain.ConflictError
	if errors.As(err, &cErr) {
		return huma.Error409Conflict(cErr.Error())
	}

	var trErr *domain.InvalidTransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return huma.Error422UnprocessableEntity(vErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
