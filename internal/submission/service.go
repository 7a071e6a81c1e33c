// Package submission implements the Submission Service: reference
// normalization, idempotency/in-progress deduplication, and scan creation.
package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scanforge/vulnscan-engine/internal/idempotency"
	"github.com/scanforge/vulnscan-engine/internal/scanmodel"
	"github.com/scanforge/vulnscan-engine/internal/store"
)

// Dispatcher offers a newly created scan to the worker pool's in-process
// fast path. A full or absent dispatcher is not an error: the pending row
// is still discoverable by every worker's poll tick.
type Dispatcher interface {
	Offer()
}

// Service ties reference normalization, the idempotency/in-progress lookup
// algorithm, and scan creation into the single logical operation described
// by the Submission Service contract.
type Service struct {
	Store      *store.Store
	Dispatcher Dispatcher
	TTLMinutes int
}

// New builds a Service. dispatcher may be nil when running without an
// in-process worker pool (e.g. a submission-only API replica).
func New(st *store.Store, dispatcher Dispatcher, ttlMinutes int) *Service {
	return &Service{Store: st, Dispatcher: dispatcher, TTLMinutes: ttlMinutes}
}

// Result is the Submission Service's (scan, cache_hit, newly_created) triple.
type Result struct {
	Scan         *scanmodel.Scan
	CacheHit     bool
	NewlyCreated bool
}

// Submit runs the reference normalization and idempotency algorithm,
// creating a new pending scan only when no cached or in-flight scan
// satisfies the request.
func (s *Service) Submit(ctx context.Context, rawName, rawTag, rawRegistry string, forceRescan bool, actor string) (Result, error) {
	ref, err := Normalize(rawName, rawTag, rawRegistry)
	if err != nil {
		return Result{}, err
	}

	if !forceRescan {
		ttl := time.Duration(s.TTLMinutes) * time.Minute
		since := time.Now().UTC().Add(-ttl)
		cached, err := s.Store.FindCachedCompleted(ctx, ref.Registry, ref.Name, ref.Tag, since)
		if err != nil {
			return Result{}, fmt.Errorf("checking cached completed scan: %w", err)
		}
		if cached != nil {
			return Result{Scan: cached, CacheHit: true, NewlyCreated: false}, nil
		}

		inProgress, err := s.Store.FindInProgress(ctx, ref.Registry, ref.Name, ref.Tag)
		if err != nil {
			return Result{}, fmt.Errorf("checking in-progress scan: %w", err)
		}
		if inProgress != nil {
			return Result{Scan: inProgress, CacheHit: false, NewlyCreated: false}, nil
		}
	}

	key := idempotency.Key(ref.Registry, ref.Name, ref.Tag, time.Now().UTC(), s.TTLMinutes)
	scan := &scanmodel.Scan{
		ID:             uuid.New(),
		Registry:       ref.Registry,
		ImageName:      ref.Name,
		ImageTag:       ref.Tag,
		Status:         scanmodel.StatusPending,
		IdempotencyKey: &key,
	}

	if err := s.Store.Create(ctx, scan, actor); err != nil {
		return Result{}, fmt.Errorf("creating scan: %w", err)
	}

	if s.Dispatcher != nil {
		s.Dispatcher.Offer()
	}

	return Result{Scan: scan, CacheHit: false, NewlyCreated: true}, nil
}

// SubmitArchive creates a pending scan for a locally staged image archive.
// There is no cache/in-progress dedup here: the archive's own digest
// already makes every upload content-addressed, and two uploads of the
// same bytes are cheap to scan independently rather than worth the
// complexity of joining them.
func (s *Service) SubmitArchive(ctx context.Context, archivePath, imageName, digest, actor string) (*scanmodel.Scan, error) {
	ref, err := Normalize(imageName, digest, archiveRegistry)
	if err != nil {
		return nil, err
	}

	key := idempotency.Key(ref.Registry, ref.Name, ref.Tag, time.Now().UTC(), s.TTLMinutes)
	scan := &scanmodel.Scan{
		ID:             uuid.New(),
		Registry:       ref.Registry,
		ImageName:      ref.Name,
		ImageTag:       ref.Tag,
		Status:         scanmodel.StatusPending,
		IdempotencyKey: &key,
		ArchivePath:    &archivePath,
	}

	if err := s.Store.Create(ctx, scan, actor); err != nil {
		return nil, fmt.Errorf("creating archive scan: %w", err)
	}

	if s.Dispatcher != nil {
		s.Dispatcher.Offer()
	}

	return scan, nil
}

// archiveRegistry is the sentinel registry value for archive-upload scans,
// which carry no registry reference of their own.
const archiveRegistry = "archive-upload"
