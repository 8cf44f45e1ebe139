package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/vncsmyrnk/places/internal/core/domain"
	"github.com/vncsmyrnk/places/internal/core/ports"
)

type auditService struct {
	ledger ports.VoteLedger
	logger *slog.Logger
}

func NewAuditService(ledger ports.VoteLedger, logger *slog.Logger) ports.AuditService {
	return &auditService{
		ledger: ledger,
		logger: resolveLogger(logger),
	}
}

// AuditVoteCounts tallies every item in parallel. Each tally reads the
// stored counter and the vote documents from one snapshot, so votes
// committed during the run are never reported. It only reports;
// counters are written by the vote transaction alone.
func (s *auditService) AuditVoteCounts(ctx context.Context) ([]domain.CountMismatch, error) {
	ids, err := s.ledger.ItemIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch item ids: %w", err)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		mismatches []domain.CountMismatch
	)
	errChan := make(chan error, len(ids))

	for _, id := range ids {
		wg.Add(1)
		go func(itemID string) {
			defer wg.Done()
			tally, found, err := s.ledger.Tally(ctx, itemID)
			if err != nil {
				errChan <- fmt.Errorf("failed to tally votes of item %s: %w", itemID, err)
				return
			}
			if found && tally.Counted != tally.Stored {
				mu.Lock()
				mismatches = append(mismatches, domain.CountMismatch{
					ItemID:  tally.ItemID,
					Stored:  tally.Stored,
					Counted: tally.Counted,
				})
				mu.Unlock()
			}
		}(id)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].ItemID < mismatches[j].ItemID })
	for _, m := range mismatches {
		s.logger.Warn("vote count mismatch", "item_id", m.ItemID, "stored", m.Stored, "counted", m.Counted)
	}
	s.logger.Info("vote count audit finished", "items", len(ids), "mismatches", len(mismatches))

	return mismatches, nil
}
