package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OfferFilter narrows offer list queries.
type OfferFilter struct {
	Kind   OfferKind   // empty: all kinds
	Maker  string      // hex address, empty: all makers
	Status *OfferStatus // nil: all statuses
}

// OfferStore persists signed offer documents and their observed snapshots.
type OfferStore interface {
	Upsert(ctx context.Context, offer Offer) error
	GetByID(ctx context.Context, id string) (Offer, error)
	List(ctx context.Context, filter OfferFilter, opts ListOpts) ([]Offer, error)
	UpdateSnapshot(ctx context.Context, id string, status OfferStatus, filled Amount) error
	ListFillable(ctx context.Context, opts ListOpts) ([]Offer, error)
	Count(ctx context.Context) (int64, error)
}

// FillStore persists fill attempts and their outcomes.
type FillStore interface {
	Create(ctx context.Context, fill Fill) error
	Confirm(ctx context.Context, id string, receipt FillReceipt) error
	Reject(ctx context.Context, id string, reason string) error
	GetByID(ctx context.Context, id string) (Fill, error)
	ListByOffer(ctx context.Context, offerID string, opts ListOpts) ([]Fill, error)
	List(ctx context.Context, opts ListOpts) ([]Fill, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
