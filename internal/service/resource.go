package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"task-manager/internal/apperr"
	"task-manager/internal/auth"
	"task-manager/internal/repository"
)

// Payload is a decoded JSON request body. Keys that are absent are left
// untouched on update.
type Payload map[string]json.RawMessage

// Descriptor tells Resource how one user-owned entity is exposed: which JSON
// fields may be written on create and on update, and how to default, own and
// validate a row.
type Descriptor[T any] struct {
	// Name is used in messages ("Task not found").
	Name string
	// Creatable and Mutable map JSON field names to columns.
	Creatable map[string]string
	Mutable   map[string]string
	// DateFields may also be sent as a bare "2006-01-02", read as midnight UTC.
	DateFields []string
	Defaults   func(*T)
	// Normalize runs after the payload is applied, on create and on update.
	Normalize func(*T)
	SetOwner  func(*T, uint)
	Validate  func(*T) error
}

// Resource applies ownership scoping to list/get/create/update/delete of T.
//
// Reads are lenient: an anonymous caller sees every row. Writes always
// require an identity and only reach rows the caller owns; a row owned by
// someone else is reported exactly like a missing one.
type Resource[T any] struct {
	desc Descriptor[T]
	repo *repository.OwnedRepository[T]
}

func NewResource[T any](desc Descriptor[T], repo *repository.OwnedRepository[T]) *Resource[T] {
	return &Resource[T]{desc: desc, repo: repo}
}

func (r *Resource[T]) List(ctx context.Context, id *auth.Identity) ([]T, error) {
	rows, err := r.repo.List(ctx, ownerOf(id))
	if err != nil {
		return nil, apperr.Internal(err, "list "+r.desc.Name)
	}
	return rows, nil
}

func (r *Resource[T]) Get(ctx context.Context, id *auth.Identity, rowID uint) (*T, error) {
	row, err := r.repo.Get(ctx, rowID, ownerOf(id))
	if err != nil {
		return nil, r.storeError(err, "find")
	}
	return row, nil
}

// Create binds the new row to the caller no matter what the payload says
// about ownership.
func (r *Resource[T]) Create(ctx context.Context, id *auth.Identity, payload Payload) (*T, error) {
	if id == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}

	row := new(T)
	if r.desc.Defaults != nil {
		r.desc.Defaults(row)
	}
	if _, err := r.apply(row, payload, r.desc.Creatable); err != nil {
		return nil, err
	}
	r.desc.SetOwner(row, id.UserID)
	if err := r.validate(row); err != nil {
		return nil, err
	}

	if err := r.repo.Create(ctx, row); err != nil {
		return nil, r.storeError(err, "create")
	}
	return row, nil
}

// Update applies only the fields present in payload. The write is
// conditioned on the owner, so a row deleted between the read and the write
// surfaces as not found.
func (r *Resource[T]) Update(ctx context.Context, id *auth.Identity, rowID uint, payload Payload) (*T, error) {
	if id == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}

	row, err := r.repo.Get(ctx, rowID, &id.UserID)
	if err != nil {
		return nil, r.storeError(err, "find")
	}

	columns, err := r.apply(row, payload, r.desc.Mutable)
	if err != nil {
		return nil, err
	}
	if err := r.validate(row); err != nil {
		return nil, err
	}

	if err := r.repo.Update(ctx, row, id.UserID, columns); err != nil {
		return nil, r.storeError(err, "update")
	}
	return row, nil
}

func (r *Resource[T]) Delete(ctx context.Context, id *auth.Identity, rowID uint) error {
	if id == nil {
		return apperr.Unauthenticated("Authentication required")
	}
	if err := r.repo.Delete(ctx, rowID, id.UserID); err != nil {
		return r.storeError(err, "delete")
	}
	return nil
}

func (r *Resource[T]) apply(row *T, payload Payload, allowed map[string]string) ([]string, error) {
	columns, err := apply(row, expandDates(payload, r.desc.DateFields), allowed)
	if err != nil {
		return nil, err
	}
	if r.desc.Normalize != nil {
		r.desc.Normalize(row)
	}
	return columns, nil
}

func (r *Resource[T]) validate(row *T) error {
	if r.desc.Validate == nil {
		return nil
	}
	return r.desc.Validate(row)
}

func (r *Resource[T]) storeError(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(r.desc.Name + " not found")
	case errors.Is(err, repository.ErrForeignKey):
		return apperr.Validation("reference", "referenced record does not exist")
	default:
		return apperr.Internal(err, op+" "+r.desc.Name)
	}
}

func ownerOf(id *auth.Identity) *uint {
	if id == nil {
		return nil
	}
	owner := id.UserID
	return &owner
}

// apply decodes each allowed field of payload into row, one field at a time
// so a bad value is reported against its own name. It returns the columns
// that were written, in a stable order.
func apply[T any](row *T, payload Payload, allowed map[string]string) ([]string, error) {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		if _, ok := allowed[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	columns := make([]string, 0, len(keys))
	for _, key := range keys {
		single, err := json.Marshal(map[string]json.RawMessage{key: payload[key]})
		if err != nil {
			return nil, apperr.Validation(key, "invalid value")
		}
		if err := json.Unmarshal(single, row); err != nil {
			return nil, apperr.Validation(key, "invalid value")
		}
		columns = append(columns, allowed[key])
	}
	return columns, nil
}

// expandDates rewrites bare dates in the given fields to RFC 3339 so they
// decode into time.Time. Anything else is passed through untouched.
func expandDates(payload Payload, fields []string) Payload {
	if len(fields) == 0 {
		return payload
	}
	var out Payload
	for _, key := range fields {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var value string
		if json.Unmarshal(raw, &value) != nil {
			continue
		}
		day, err := time.Parse(time.DateOnly, value)
		if err != nil {
			continue
		}
		if out == nil {
			out = make(Payload, len(payload))
			for k, v := range payload {
				out[k] = v
			}
		}
		out[key], _ = json.Marshal(day.Format(time.RFC3339))
	}
	if out == nil {
		return payload
	}
	return out
}
