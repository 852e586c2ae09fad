package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Rank            int        `json:"rank"`
	StudentID       *uuid.UUID `json:"student_id,omitempty"`
	DisplayName     string     `json:"display_name"`
	TotalScore      float64    `json:"total_score"`
	PercentageScore float64    `json:"percentage_score"`
	DurationSeconds int        `json:"duration_seconds"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	IsCurrentUser   bool       `json:"is_current_user"`
}

// Leaderboard is a ranked, anonymised view over the results of a simulation.
// CurrentUser repeats the requester's entry when it falls outside Entries.
type Leaderboard struct {
	Entries           []LeaderboardEntry `json:"leaderboard"`
	TotalParticipants int                `json:"total_participants"`
	CurrentUser       *LeaderboardEntry  `json:"current_user,omitempty"`
}

// rankedRow is the cached, not yet anonymised form of an entry.
type rankedRow struct {
	StudentID       uuid.UUID  `json:"student_id"`
	Name            string     `json:"name"`
	TotalScore      float64    `json:"total_score"`
	PercentageScore float64    `json:"percentage_score"`
	DurationSeconds int        `json:"duration_seconds"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ranksBefore orders by score desc, duration asc, completion asc, student id.
func ranksBefore(a, b rankedRow) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if a.DurationSeconds != b.DurationSeconds {
		return a.DurationSeconds < b.DurationSeconds
	}
	switch {
	case a.CompletedAt != nil && b.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt):
		return a.CompletedAt.Before(*b.CompletedAt)
	case a.CompletedAt != nil && b.CompletedAt == nil:
		return true
	case a.CompletedAt == nil && b.CompletedAt != nil:
		return false
	}
	return a.StudentID.String() < b.StudentID.String()
}

// orderResults keeps the best completed attempt per student and sorts them.
func orderResults(results []model.Result) []rankedRow {
	best := make(map[uuid.UUID]rankedRow, len(results))
	for _, r := range results {
		if r.CompletedAt == nil {
			continue
		}
		row := rankedRow{
			StudentID:       r.StudentID,
			Name:            r.StudentName,
			TotalScore:      r.TotalScore,
			PercentageScore: r.PercentageScore,
			DurationSeconds: r.DurationSeconds,
			CompletedAt:     r.CompletedAt,
		}
		if cur, ok := best[r.StudentID]; !ok || ranksBefore(row, cur) {
			best[r.StudentID] = row
		}
	}

	rows := make([]rankedRow, 0, len(best))
	for _, row := range best {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return ranksBefore(rows[i], rows[j]) })
	return rows
}

// anonymise assigns sequential ranks and hides everyone but the requester.
func anonymise(rows []rankedRow, requesterID uuid.UUID, limit int) Leaderboard {
	lb := Leaderboard{TotalParticipants: len(rows), Entries: []LeaderboardEntry{}}
	for i, row := range rows {
		e := LeaderboardEntry{
			Rank:            i + 1,
			TotalScore:      row.TotalScore,
			PercentageScore: row.PercentageScore,
			DurationSeconds: row.DurationSeconds,
			CompletedAt:     row.CompletedAt,
		}
		if row.StudentID == requesterID {
			id := row.StudentID
			e.StudentID = &id
			e.DisplayName = row.Name
			e.IsCurrentUser = true
		} else {
			e.DisplayName = fmt.Sprintf("Partecipante #%d", e.Rank)
		}

		if limit <= 0 || i < limit {
			lb.Entries = append(lb.Entries, e)
		} else if e.IsCurrentUser {
			lb.CurrentUser = &e
		}
	}
	return lb
}

// Rank ranks results by score (desc) then duration (asc) with sequential
// 1-based ranks, one entry per student. Only the requester keeps a name. A
// limit <= 0 returns every entry.
func Rank(results []model.Result, requesterID uuid.UUID, limit int) Leaderboard {
	return anonymise(orderResults(results), requesterID, limit)
}

// ResultLister lists completed results.
type ResultLister interface {
	ListCompletedBySimulation(ctx context.Context, simulationID uuid.UUID) ([]model.Result, error)
}

// LeaderboardSimulation is the simulation header of a leaderboard response.
type LeaderboardSimulation struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Type           string    `json:"type"`
	TotalQuestions int       `json:"total_questions"`
	IsOfficial     bool      `json:"is_official"`
}

// LeaderboardView is the leaderboard endpoint payload.
type LeaderboardView struct {
	Simulation LeaderboardSimulation `json:"simulation"`
	Leaderboard
}

// LeaderboardService serves cached leaderboards.
type LeaderboardService struct {
	access  *AccessService
	results ResultLister
	rdb     *redis.Client
	ttl     time.Duration
	log     zerolog.Logger
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(access *AccessService, results ResultLister, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *LeaderboardService {
	return &LeaderboardService{
		access:  access,
		results: results,
		rdb:     rdb,
		ttl:     ttl,
		log:     log.With().Str("component", "leaderboard_service").Logger(),
	}
}

// Get returns the leaderboard of a simulation as seen by p.
func (s *LeaderboardService) Get(ctx context.Context, p *model.Principal, simulationID uuid.UUID, limit int) (*LeaderboardView, error) {
	access, err := s.access.ResolveAccess(ctx, p, simulationID)
	if err != nil {
		return nil, err
	}
	sim := access.Simulation
	if p.Role == model.RoleStudent && sim.Status == model.SimulationStatusDraft {
		return nil, ErrNotPublished
	}

	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	rows, err := s.rows(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	return &LeaderboardView{
		Simulation: LeaderboardSimulation{
			ID:             sim.ID,
			Title:          sim.Title,
			Type:           sim.Type,
			TotalQuestions: sim.TotalQuestions,
			IsOfficial:     sim.IsOfficial,
		},
		Leaderboard: anonymise(rows, p.UserID, limit),
	}, nil
}

// rows returns the ordered rows from Redis, rebuilding them on a miss.
func (s *LeaderboardService) rows(ctx context.Context, simulationID uuid.UUID) ([]rankedRow, error) {
	key := config.CacheKey.SimulationLeaderboardKey(simulationID.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var rows []rankedRow
		if err := json.Unmarshal(raw, &rows); err == nil {
			return rows, nil
		}
		s.log.Warn().Str("key", key).Msg("Corrupt leaderboard cache entry, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Redis read failed, ranking from Postgres")
	}

	results, err := s.results.ListCompletedBySimulation(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	rows := orderResults(results)

	if data, err := json.Marshal(rows); err == nil {
		if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache leaderboard")
		}
	}
	return rows, nil
}

// Invalidate drops the cached ranking of a simulation.
func (s *LeaderboardService) Invalidate(ctx context.Context, simulationID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.SimulationLeaderboardKey(simulationID.String())).Err()
}
