package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Cache is the persisted local credential store. It is a materialized view
// of the last reconciliation, not an independent source of truth.
type Cache interface {
	// Load returns the cached credential list.
	Load(ctx context.Context) ([]Credential, error)
	// Replace overwrites the cache with the given list.
	Replace(ctx context.Context, creds []Credential) error
}

// EmptyServerPolicy decides what an empty-but-successful server listing means.
type EmptyServerPolicy string

const (
	// EmptyServerPreserve treats an empty listing as a possibly-transient
	// anomaly and keeps the local cache untouched.
	EmptyServerPreserve EmptyServerPolicy = "preserve"
	// EmptyServerClear treats an empty listing as authoritative proof the
	// wallet is empty and clears the local cache.
	EmptyServerClear EmptyServerPolicy = "clear"
)

// ErrStaleRefresh is returned when a refresh result arrives after a newer
// refresh has been issued; the stale result is discarded, not applied.
var ErrStaleRefresh = errors.New("refresh superseded by a newer one")

// ErrNoData is returned when the server is unreachable and the local cache
// is empty, so there is nothing to show at all.
var ErrNoData = errors.New("no credentials available")

// Reconciler merges the node's authoritative-but-thin credential listing
// with the richer local cache, producing one display-ready list per refresh.
type Reconciler struct {
	cache  Cache
	policy EmptyServerPolicy
	logger *slog.Logger

	gen atomic.Uint64

	mu        sync.Mutex
	lastWrite uint64 // fingerprint of the last persisted list
}

// NewReconciler creates a Reconciler over the given cache.
func NewReconciler(cache Cache, policy EmptyServerPolicy, logger *slog.Logger) *Reconciler {
	if policy == "" {
		policy = EmptyServerPreserve
	}
	return &Reconciler{cache: cache, policy: policy, logger: logger}
}

// Begin issues a new refresh generation. Reconcile rejects results from any
// generation that is no longer the newest issued, so overlapping refreshes
// (timer tick plus manual refresh) cannot apply out of order.
func (r *Reconciler) Begin() uint64 {
	return r.gen.Add(1)
}

// Reconcile merges the server-reported credentials into the local cache and
// returns the merged list. The cache is rewritten to equal the result unless
// nothing changed since the last write.
func (r *Reconciler) Reconcile(ctx context.Context, gen uint64, server []Credential) ([]Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen.Load() {
		return nil, ErrStaleRefresh
	}

	local, err := r.cache.Load(ctx)
	if err != nil {
		// Cache trouble degrades to a server-only merge, never to a failure.
		r.logger.Warn("credential cache unreadable, merging against empty cache", "error", err)
		local = nil
	}

	if len(server) == 0 {
		if r.policy == EmptyServerPreserve {
			r.logger.Debug("server reported zero credentials, preserving local cache", "local", len(local))
			return local, nil
		}
		if err := r.persist(ctx, []Credential{}); err != nil {
			return nil, err
		}
		return []Credential{}, nil
	}

	merged := make([]Credential, 0, len(server))
	claimed := make(map[int]bool, len(local))
	for i, sv := range server {
		if sv.ID == "" {
			sv.ID = SynthesizeID(sv.DocType, i)
		}
		if j := matchLocal(local, sv, claimed); j >= 0 {
			claimed[j] = true
			merged = append(merged, merge(sv, local[j]))
		} else {
			// No local detail yet: take the server entry as a stub.
			merged = append(merged, sv)
		}
	}

	if err := r.persist(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Fallback returns the local cache verbatim after a server fetch failed for
// connectivity reasons. Callers flag the result as degraded. An empty cache
// makes the fetch failure unrecoverable.
//
// This path must never be taken for authentication failures; those propagate
// so the session can expire (callers enforce this before calling Fallback).
func (r *Reconciler) Fallback(ctx context.Context, fetchErr error) ([]Credential, error) {
	local, err := r.cache.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch failed (%v) and cache unreadable: %v", ErrNoData, fetchErr, err)
	}
	if len(local) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoData, fetchErr)
	}
	return local, nil
}

// persist rewrites the cache unless the list is byte-identical to the last
// persisted one.
func (r *Reconciler) persist(ctx context.Context, creds []Credential) error {
	fp := fingerprint(creds)
	if fp == r.lastWrite && r.lastWrite != 0 {
		return nil
	}
	if err := r.cache.Replace(ctx, creds); err != nil {
		return fmt.Errorf("persist merged credentials: %w", err)
	}
	r.lastWrite = fp
	return nil
}

// fingerprint hashes the canonical JSON form of the list.
func fingerprint(creds []Credential) uint64 {
	h := xxhash.New()
	enc := json.NewEncoder(h)
	for i := range creds {
		_ = enc.Encode(&creds[i])
	}
	return h.Sum64()
}

// matchLocal finds the local entry for a server-reported credential.
// Match order: identical id, then identical docType, then overlapping type
// tags with identical issuer. Each local entry matches at most one server
// entry per refresh.
func matchLocal(local []Credential, sv Credential, claimed map[int]bool) int {
	for i := range local {
		if !claimed[i] && local[i].ID != "" && local[i].ID == sv.ID {
			return i
		}
	}
	for i := range local {
		if !claimed[i] && sv.DocType != "" && local[i].DocType == sv.DocType {
			return i
		}
	}
	for i := range local {
		if !claimed[i] && TypeOverlap(local[i].Type, sv.Type) && local[i].Issuer == sv.Issuer {
			return i
		}
	}
	return -1
}

// merge combines a server entry with its matching local entry. The server
// is authoritative for identity and status fields; field-level detail the
// server omitted survives from the local copy. Server silence must never
// blank out richer local data.
func merge(sv, local Credential) Credential {
	out := sv
	if out.Issuer == "" {
		out.Issuer = local.Issuer
	}
	if out.DocType == "" {
		out.DocType = local.DocType
	}
	if len(out.Type) == 0 {
		out.Type = local.Type
	}
	if out.IssuanceDate == "" {
		out.IssuanceDate = local.IssuanceDate
	}
	if out.ExpirationDate == "" {
		out.ExpirationDate = local.ExpirationDate
	}
	if out.Status == "" {
		out.Status = local.Status
	}
	if out.Namespaces == nil {
		out.Namespaces = local.Namespaces
	}
	if out.CredentialSubject == nil {
		out.CredentialSubject = local.CredentialSubject
	}
	if out.Display == nil {
		out.Display = local.Display
	}
	return out
}
