package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/pitchtrack/internal/config"
	"github.com/your-org/pitchtrack/internal/models"
	"github.com/your-org/pitchtrack/internal/pitch"
	"github.com/your-org/pitchtrack/internal/storage/migrations"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate brings the schema up to date.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, s.pool)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Matches ---

const matchColumns = `id, name, source_url, source_type, fps, status, error_message, created_at, updated_at`

func scanMatch(row pgx.Row) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(&m.ID, &m.Name, &m.SourceURL, &m.SourceType, &m.FPS,
		&m.Status, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMatch assigns an ID, marks the match stopped and inserts it.
func (s *PostgresStore) CreateMatch(ctx context.Context, m *models.Match) error {
	m.ID = uuid.New()
	m.Status = models.MatchStatusStopped
	err := s.pool.QueryRow(ctx,
		`INSERT INTO matches (id, name, source_url, source_type, fps, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		m.ID, m.Name, m.SourceURL, m.SourceType, m.FPS, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMatches(ctx context.Context) ([]models.Match, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (s *PostgresStore) UpdateMatchStatus(ctx context.Context, id uuid.UUID, status models.MatchStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE matches SET status = $1, error_message = $2, updated_at = now() WHERE id = $3`,
		status, errMsg, id)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMatch removes the match and, by cascade, its records and scores.
func (s *PostgresStore) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Track records ---

// InsertTrackRecords stores one batch. Records already stored for the same
// (match, track, frame) are left untouched, so redelivered batches are harmless.
func (s *PostgresStore) InsertTrackRecords(ctx context.Context, matchID uuid.UUID, records []models.TrackRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(
			`INSERT INTO track_records (match_id, track_id, frame_index, x1, y1, x2, y2, score, cx, cy)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (match_id, track_id, frame_index) DO NOTHING`,
			matchID, r.TrackID, r.FrameIndex,
			r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3],
			r.Score, r.Centroid[0], r.Centroid[1],
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert track records: %w", err)
	}
	return nil
}

// TrackQuery filters QueryTrackRecords. Nil fields do not filter.
type TrackQuery struct {
	TrackID   *int64
	FromFrame *int
	ToFrame   *int
	Limit     int
	Offset    int
}

// QueryTrackRecords returns one page of records ordered by frame then track,
// plus the total number of matching records. A Limit of -1 returns all rows.
func (s *PostgresStore) QueryTrackRecords(ctx context.Context, matchID uuid.UUID, q TrackQuery) ([]models.TrackRecord, int, error) {
	limit := q.Limit
	switch {
	case limit == 0:
		limit = 100
	case limit > 5000:
		limit = 5000
	}

	baseWhere := "WHERE match_id = $1"
	args := []any{matchID}
	argIdx := 2

	if q.TrackID != nil {
		baseWhere += fmt.Sprintf(" AND track_id = $%d", argIdx)
		args = append(args, *q.TrackID)
		argIdx++
	}
	if q.FromFrame != nil {
		baseWhere += fmt.Sprintf(" AND frame_index >= $%d", argIdx)
		args = append(args, *q.FromFrame)
		argIdx++
	}
	if q.ToFrame != nil {
		baseWhere += fmt.Sprintf(" AND frame_index <= $%d", argIdx)
		args = append(args, *q.ToFrame)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM track_records "+baseWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count track records: %w", err)
	}

	query := `SELECT track_id, frame_index, x1, y1, x2, y2, score, cx, cy FROM track_records ` +
		baseWhere + ` ORDER BY frame_index, track_id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, limit, q.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query track records: %w", err)
	}
	defer rows.Close()

	var records []models.TrackRecord
	for rows.Next() {
		var r models.TrackRecord
		if err := rows.Scan(&r.TrackID, &r.FrameIndex,
			&r.BBox[0], &r.BBox[1], &r.BBox[2], &r.BBox[3],
			&r.Score, &r.Centroid[0], &r.Centroid[1]); err != nil {
			return nil, 0, fmt.Errorf("scan track record: %w", err)
		}
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// --- Homographies ---

func (s *PostgresStore) SaveHomography(ctx context.Context, matchID uuid.UUID, h pitch.Homography) error {
	flat := make([]float64, 0, 9)
	for _, row := range h {
		flat = append(flat, row[:]...)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO homographies (match_id, matrix) VALUES ($1, $2)
		 ON CONFLICT (match_id) DO UPDATE SET matrix = EXCLUDED.matrix, updated_at = now()`,
		matchID, flat)
	if err != nil {
		return fmt.Errorf("save homography: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHomography(ctx context.Context, matchID uuid.UUID) (pitch.Homography, error) {
	var flat []float64
	err := s.pool.QueryRow(ctx,
		`SELECT matrix FROM homographies WHERE match_id = $1`, matchID).Scan(&flat)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pitch.Homography{}, ErrNotFound
		}
		return pitch.Homography{}, fmt.Errorf("get homography: %w", err)
	}
	if len(flat) != 9 {
		return pitch.Homography{}, fmt.Errorf("get homography: stored matrix has %d values", len(flat))
	}

	var h pitch.Homography
	for i, v := range flat {
		h[i/3][i%3] = v
	}
	return h, nil
}

// --- Threat scores ---

// SaveThreatScores replaces every stored score of the match.
func (s *PostgresStore) SaveThreatScores(ctx context.Context, matchID uuid.UUID, scores []models.ThreatScore) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM threat_scores WHERE match_id = $1`, matchID); err != nil {
		return fmt.Errorf("clear threat scores: %w", err)
	}

	rows := make([][]any, len(scores))
	for i, sc := range scores {
		rows[i] = []any{matchID, sc.TrackID, sc.XT}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"threat_scores"},
		[]string{"match_id", "track_id", "xt"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy threat scores: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit threat scores: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListThreatScores(ctx context.Context, matchID uuid.UUID) ([]models.ThreatScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT track_id, xt FROM threat_scores WHERE match_id = $1 ORDER BY track_id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list threat scores: %w", err)
	}
	defer rows.Close()

	scores, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.ThreatScore])
	if err != nil {
		return nil, fmt.Errorf("scan threat scores: %w", err)
	}
	return scores, nil
}
