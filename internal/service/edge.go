package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/metrics"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

// EdgeService exposes likes and bookmarks. The repository does the real
// work inside one transaction per call; this layer validates ids, records
// metrics and hides storage failures behind a generic message.
//
// NO AUTOMATIC RETRY:
// A failed toggle is reported once as "operation failed" and left to the
// client. The transaction already rolled back, so the edge and its counter
// are unchanged and a manual retry is always safe.
type EdgeService struct {
	repo    repository.EdgeRepository
	metrics *metrics.Metrics // edge_operations_total, counters_corrected_total
	logger  *slog.Logger
}

func NewEdgeService(repo repository.EdgeRepository, m *metrics.Metrics, logger *slog.Logger) *EdgeService {
	return &EdgeService{repo: repo, metrics: m, logger: logger}
}

// Add records userID's edge to entityID. Adding an existing edge changes
// nothing and still reports mine=true.
func (s *EdgeService) Add(ctx context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error) {
	if err := checkEdgeArgs(kind, entityID); err != nil {
		return model.EdgeStatus{}, err
	}
	st, err := s.repo.AddEdge(ctx, kind, userID, entityID)
	return s.finish(ctx, kind, "add", userID, entityID, st, err)
}

// Remove deletes userID's edge. Removing an absent edge is a no-op.
func (s *EdgeService) Remove(ctx context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error) {
	if err := checkEdgeArgs(kind, entityID); err != nil {
		return model.EdgeStatus{}, err
	}
	st, err := s.repo.RemoveEdge(ctx, kind, userID, entityID)
	return s.finish(ctx, kind, "remove", userID, entityID, st, err)
}

// Status reports the counter and, for a signed-in caller, whether they hold
// an edge. A nil userID never triggers the ownership lookup.
func (s *EdgeService) Status(ctx context.Context, kind model.EdgeKind, userID *int64, entityID int64) (model.EdgeStatus, error) {
	if err := checkEdgeArgs(kind, entityID); err != nil {
		return model.EdgeStatus{}, err
	}
	st, err := s.repo.EdgeStatus(ctx, kind, userID, entityID)
	if err != nil {
		return model.EdgeStatus{}, s.hide(err, kind, "status", entityID)
	}
	return st, nil
}

// Recount rewrites drifted counters of every kind and returns the number of
// corrected entities per kind.
func (s *EdgeService) Recount(ctx context.Context) (map[model.EdgeKind]int64, error) {
	out := make(map[model.EdgeKind]int64, len(model.EdgeKinds))
	for _, kind := range model.EdgeKinds {
		n, err := s.repo.Recount(ctx, kind)
		if err != nil {
			return out, err
		}
		out[kind] = n
		s.metrics.CountersCorrected.WithLabelValues(string(kind)).Add(float64(n))
		s.logger.Info("counters recounted",
			slog.String("kind", string(kind)),
			slog.Int64("corrected", n),
		)
	}
	return out, nil
}

func (s *EdgeService) finish(ctx context.Context, kind model.EdgeKind, op string, userID, entityID int64,
	after model.EdgeStatus, err error) (model.EdgeStatus, error) {
	if err != nil {
		s.metrics.EdgeOps.WithLabelValues(string(kind), op, "error").Inc()
		return model.EdgeStatus{}, s.hide(err, kind, op, entityID)
	}

	s.metrics.EdgeOps.WithLabelValues(string(kind), op, "ok").Inc()
	s.logger.DebugContext(ctx, "edge "+op,
		slog.String("kind", string(kind)),
		slog.Int64("userID", userID),
		slog.Int64("entityID", entityID),
		slog.Int64("total", after.Total),
	)
	return after, nil
}

// hide lets domain errors through and replaces anything else with a
// generic failure, logging the detail.
func (s *EdgeService) hide(err error, kind model.EdgeKind, op string, entityID int64) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Error("edge operation failed",
		slog.String("kind", string(kind)),
		slog.String("op", op),
		slog.Int64("entityID", entityID),
		slog.String("error", err.Error()),
	)
	return errEdgeFailed
}

var errEdgeFailed = errors.New("operation failed, please try again")

func checkEdgeArgs(kind model.EdgeKind, entityID int64) error {
	if !kind.Valid() {
		return apperror.ValidationFailed("kind", "unknown like or bookmark kind")
	}
	if entityID <= 0 {
		return apperror.ValidationFailed("id", "id must be a positive integer")
	}
	return nil
}
