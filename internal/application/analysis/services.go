package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shivanishrees/malscan/internal/application"
	domain "github.com/shivanishrees/malscan/internal/domain/analysis"
	"github.com/shivanishrees/malscan/internal/domain/scoring"
	"github.com/shivanishrees/malscan/internal/middleware"
)

// minHashLength is the shortest accepted content hash (hex MD5).
const minHashLength = 32

// Service implements the analysis orchestration use-cases.
// It is safe for concurrent use; each analysis run owns its record's
// writes and goes through the repository's merge operation.
type Service struct {
	Repo     domain.Repository
	Registry domain.Registry
	Scoring  scoring.Config
	Clock    application.Clock
	Log      *logrus.Logger
}

// InitiateResult is returned to the caller before any module runs.
type InitiateResult struct {
	ID     domain.AnalysisID `json:"id"`
	Status domain.Status     `json:"status"`
	Reused bool              `json:"reused,omitempty"`
}

// ValidateRequest checks a submission before any record is created.
func (s *Service) ValidateRequest(fd domain.FileDescriptor) error {
	if fd.Hash == "" {
		return &domain.InvalidRequestError{Field: "file_hash", Reason: "is required"}
	}
	if len(fd.Hash) < minHashLength {
		return &domain.InvalidRequestError{Field: "file_hash", Reason: fmt.Sprintf("must be at least %d characters", minHashLength)}
	}
	if fd.Name == "" {
		return &domain.InvalidRequestError{Field: "file_name", Reason: "is required"}
	}
	if fd.Size < 0 {
		return &domain.InvalidRequestError{Field: "file_size", Reason: "must be non-negative"}
	}
	if fd.Type == "" {
		return &domain.InvalidRequestError{Field: "file_type", Reason: "is required"}
	}
	return nil
}

// Initiate validates the descriptor, creates a PENDING record, and starts
// module execution in the background. It never blocks on module execution.
// A duplicate content hash reuses the existing analysis instead of starting
// a new one.
func (s *Service) Initiate(ctx context.Context, fd domain.FileDescriptor, metadata map[string]string) (InitiateResult, error) {
	if err := s.ValidateRequest(fd); err != nil {
		return InitiateResult{}, err
	}

	id := domain.AnalysisID(uuid.New().String())
	record := domain.NewRecord(id, fd, s.Clock.Now())
	stored, created, err := s.Repo.CreateIfAbsent(ctx, record)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("create analysis record: %w", err)
	}
	if !created {
		return InitiateResult{ID: stored.ID, Status: stored.Status, Reused: true}, nil
	}

	// Detach from the caller's context so the run survives the HTTP
	// request that triggered it.
	go s.execute(context.Background(), id, fd, metadata)

	return InitiateResult{ID: id, Status: domain.StatusPending}, nil
}

// Status returns the current record, including any partial module results.
func (s *Service) Status(ctx context.Context, id domain.AnalysisID) (*domain.AnalysisRecord, error) {
	return s.Repo.Get(ctx, id)
}

// Latest returns the most recently initiated records.
func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.AnalysisRecord, error) {
	return s.Repo.Latest(ctx, limit)
}

// ModuleNames exposes the registry directory for introspection.
func (s *Service) ModuleNames() []string {
	return s.Registry.Names()
}

// execute runs the full pipeline for one analysis: IN_PROGRESS, all
// registered modules in parallel with per-module deadlines, partial result
// merges as each settles, then one atomic scoring finalize.
func (s *Service) execute(ctx context.Context, id domain.AnalysisID, fd domain.FileDescriptor, metadata map[string]string) {
	middleware.IncrementAnalysesRunning()
	defer middleware.DecrementAnalysesRunning()
	defer func() {
		if p := recover(); p != nil {
			s.logger().WithField("analysis_id", id).Errorf("orchestration panic: %v", p)
			s.markFailed(ctx, id, fmt.Sprintf("internal orchestration error: %v", p))
		}
	}()

	if _, err := s.Repo.Update(ctx, id, func(r *domain.AnalysisRecord) error {
		if r.Status.Terminal() {
			return fmt.Errorf("analysis %s already finalized", id)
		}
		r.Status = domain.StatusInProgress
		return nil
	}); err != nil {
		s.logger().WithField("analysis_id", id).WithError(err).Error("transition to IN_PROGRESS failed")
		s.markFailed(ctx, id, "could not start analysis")
		return
	}

	in := domain.ModuleInput{
		AnalysisID: id,
		FileHash:   fd.Hash,
		FileName:   fd.Name,
		FileSize:   fd.Size,
		FileType:   fd.Type,
		Metadata:   metadata,
	}

	mods := s.Registry.All()
	var wg sync.WaitGroup
	for _, m := range mods {
		wg.Add(1)
		go func(m domain.Module) {
			defer wg.Done()
			out := s.invoke(ctx, m, in)
			s.recordModuleResult(ctx, id, out)
		}(m)
	}
	wg.Wait()

	current, err := s.Repo.Get(ctx, id)
	if err != nil {
		s.logger().WithField("analysis_id", id).WithError(err).Error("reload before scoring failed")
		s.markFailed(ctx, id, "could not load module results for scoring")
		return
	}

	res := scoring.Score(current.ModuleResults, s.Scoring)
	now := s.Clock.Now()
	if _, err := s.Repo.Update(ctx, id, func(r *domain.AnalysisRecord) error {
		if r.Status.Terminal() {
			return fmt.Errorf("analysis %s already finalized", id)
		}
		r.Status = domain.StatusCompleted
		r.RiskScore = res.RiskScore
		r.Confidence = res.Confidence
		r.Verdict = res.Verdict
		r.Explanation = res.Explanation
		r.Recommendation = res.Recommendation
		r.Flags = res.Flags
		r.CompletedAt = &now
		return nil
	}); err != nil {
		s.logger().WithField("analysis_id", id).WithError(err).Error("finalize failed")
		return
	}

	s.logger().WithFields(logrus.Fields{
		"analysis_id": id,
		"verdict":     res.Verdict,
		"confidence":  res.Confidence,
		"modules":     len(mods),
	}).Info("analysis completed")
}

// invoke races one provider against its configured deadline. The provider
// runs in its own goroutine writing to a buffered channel, so a straggler
// that finishes after the deadline is simply abandoned and can never touch
// the record.
func (s *Service) invoke(ctx context.Context, m domain.Module, in domain.ModuleInput) domain.ModuleOutput {
	timeout := s.Scoring.Timeout(m.Name())
	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan domain.ModuleOutput, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- domain.FailedOutput(m.Name(), fmt.Sprintf("module panic: %v", p), time.Since(start).Milliseconds())
			}
		}()
		done <- m.Execute(mctx, in)
	}()

	select {
	case out := <-done:
		if out.ModuleName == "" {
			out.ModuleName = m.Name()
		}
		if out.DurationMS == 0 {
			out.DurationMS = time.Since(start).Milliseconds()
		}
		return out
	case <-mctx.Done():
		s.logger().WithFields(logrus.Fields{
			"analysis_id": in.AnalysisID,
			"module":      m.Name(),
			"timeout":     timeout,
		}).Warn("module timed out")
		return domain.TimeoutOutput(m.Name(), time.Since(start).Milliseconds())
	}
}

// recordModuleResult merges one settled output into the record. Writes are
// monotonic: an existing entry is never replaced, and nothing is written
// once the record is terminal.
func (s *Service) recordModuleResult(ctx context.Context, id domain.AnalysisID, out domain.ModuleOutput) {
	_, err := s.Repo.Update(ctx, id, func(r *domain.AnalysisRecord) error {
		if r.Status.Terminal() {
			return fmt.Errorf("analysis %s already finalized", id)
		}
		if _, exists := r.ModuleResults[out.ModuleName]; exists {
			return nil
		}
		r.ModuleResults[out.ModuleName] = out
		return nil
	})
	if err != nil {
		s.logger().WithFields(logrus.Fields{
			"analysis_id": id,
			"module":      out.ModuleName,
		}).WithError(err).Error("partial result write failed")
	}
}

// markFailed forces the record into the FAILED terminal state with the
// Zero-Trust verdict.
func (s *Service) markFailed(ctx context.Context, id domain.AnalysisID, reason string) {
	now := s.Clock.Now()
	transitioned := false
	_, err := s.Repo.Update(ctx, id, func(r *domain.AnalysisRecord) error {
		if r.Status.Terminal() {
			return nil
		}
		transitioned = true
		r.Status = domain.StatusFailed
		r.Verdict = domain.VerdictUnknown
		r.Explanation = fmt.Sprintf("Analysis failed (%s). Treat this file as untrusted.", reason)
		r.Recommendation = scoring.Recommend(domain.VerdictUnknown, nil)
		r.CompletedAt = &now
		return nil
	})
	if err != nil {
		s.logger().WithField("analysis_id", id).WithError(err).Error("mark failed write failed")
		return
	}
	if transitioned {
		middleware.IncrementAnalysesFailed()
	}
}

func (s *Service) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}
