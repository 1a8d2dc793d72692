package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tabletalk/backend/internal/db"
	"github.com/tabletalk/backend/internal/models"
)

const userColumns = `id, email, password_hash, display_name, avatar_url,
        is_ready_to_talk, active_place_id, ready_until, latitude, longitude,
        created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	var lat, lon sql.NullFloat64
	if user.LastLocation != nil {
		lat = sql.NullFloat64{Valid: true, Float64: user.LastLocation.Latitude}
		lon = sql.NullFloat64{Valid: true, Float64: user.LastLocation.Longitude}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, display_name, avatar_url,
                is_ready_to_talk, active_place_id, ready_until, latitude, longitude,
                created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, user.ID, user.Email, user.Password, user.DisplayName, user.AvatarURL,
		user.IsReadyToTalk, user.ActivePlaceID, user.ReadyUntil, lat, lon,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return classify(err, "insert user")
	}

	return nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE id = $1
    `, id)

	return scanUser(row, "select user by id")
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE email = $1
    `, email)

	return scanUser(row, "select user by email")
}

// FindMany fetches the users with the provided ids. Missing ids are
// silently omitted from the result.
func (r *PostgresUserRepository) FindMany(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE id = ANY($1)
    `, ids)
	if err != nil {
		return nil, classify(err, "query users by ids")
	}
	defer rows.Close()

	return collectUsers(rows, "users by ids")
}

// UpdateProfile sets the user's display name and avatar URL.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET display_name = $2, avatar_url = $3, updated_at = NOW()
        WHERE id = $1
    `, id, displayName, avatarURL)
	if err != nil {
		return classify(err, "update profile")
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetAvailability flips the ready-to-talk flag without touching the
// session fields.
func (r *PostgresUserRepository) SetAvailability(ctx context.Context, id string, ready bool) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET is_ready_to_talk = $2, updated_at = NOW()
        WHERE id = $1
    `, id, ready)
	if err != nil {
		return classify(err, "update availability")
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// StartSessionIf applies the check-in only when no live session exists on
// the row. The WHERE clause is the concurrency guard: two devices racing
// to check in cannot clobber each other because only one update matches.
func (r *PostgresUserRepository) StartSessionIf(ctx context.Context, id, placeID string, until time.Time, coord *models.Coordinate) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	var lat, lon sql.NullFloat64
	if coord != nil {
		lat = sql.NullFloat64{Valid: true, Float64: coord.Latitude}
		lon = sql.NullFloat64{Valid: true, Float64: coord.Longitude}
	}

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET active_place_id = $2,
            ready_until = $3,
            latitude = COALESCE($4, latitude),
            longitude = COALESCE($5, longitude),
            updated_at = NOW()
        WHERE id = $1
          AND (ready_until IS NULL OR ready_until <= NOW())
    `, id, placeID, until.UTC(), lat, lon)
	if err != nil {
		return false, classify(err, "start session")
	}

	return tag.RowsAffected() > 0, nil
}

// ClearSession nils the place and expiry fields. Clearing an absent
// session is not an error.
func (r *PostgresUserRepository) ClearSession(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE users
        SET active_place_id = NULL, ready_until = NULL, updated_at = NOW()
        WHERE id = $1
    `, id)
	if err != nil {
		return classify(err, "clear session")
	}

	return nil
}

// UpdateLocation stores the last known device coordinate.
func (r *PostgresUserRepository) UpdateLocation(ctx context.Context, id string, coord models.Coordinate) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET latitude = $2, longitude = $3, updated_at = NOW()
        WHERE id = $1
    `, id, coord.Latitude, coord.Longitude)
	if err != nil {
		return classify(err, "update location")
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListOccupants returns users whose stored session references the place
// and is still live at the provided instant. The expiry comparison is in
// the query, so a row the sweeper has not reached yet is still excluded.
func (r *PostgresUserRepository) ListOccupants(ctx context.Context, placeID string, now time.Time) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE active_place_id = $1
          AND ready_until IS NOT NULL
          AND ready_until > $2
        ORDER BY ready_until DESC
    `, placeID, now.UTC())
	if err != nil {
		return nil, classify(err, "query occupants")
	}
	defer rows.Close()

	return collectUsers(rows, "occupants")
}

// ClearExpired nils the session fields on every row whose expiry has
// passed and returns the affected user ids. Hygiene only; read paths never
// depend on it.
func (r *PostgresUserRepository) ClearExpired(ctx context.Context, now time.Time) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        UPDATE users
        SET active_place_id = NULL, ready_until = NULL, updated_at = NOW()
        WHERE ready_until IS NOT NULL AND ready_until <= $1
        RETURNING id
    `, now.UTC())
	if err != nil {
		return nil, classify(err, "clear expired sessions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate expired ids")
	}

	return ids, nil
}

// SearchCandidates finds users matching the query, excluding the viewer
// and anyone already connected to them in either direction, pending or
// accepted.
func (r *PostgresUserRepository) SearchCandidates(ctx context.Context, viewerID, query string) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`
        FROM users u
        WHERE u.id <> $1
          AND (u.display_name ILIKE '%' || $2 || '%' OR u.email ILIKE '%' || $2 || '%')
          AND NOT EXISTS (
              SELECT 1 FROM friend_edges fe
              WHERE (fe.requester_id = $1 AND fe.receiver_id = u.id)
                 OR (fe.receiver_id = $1 AND fe.requester_id = u.id)
          )
        ORDER BY u.display_name
        LIMIT 25
    `, viewerID, query)
	if err != nil {
		return nil, classify(err, "search users")
	}
	defer rows.Close()

	return collectUsers(rows, "search candidates")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, op string) (models.User, error) {
	var (
		user        models.User
		avatar      sql.NullString
		activePlace sql.NullString
		readyUntil  sql.NullTime
		lat, lon    sql.NullFloat64
	)

	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.DisplayName,
		&avatar, &user.IsReadyToTalk, &activePlace, &readyUntil, &lat, &lon,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user.AvatarURL = avatar.String
	if activePlace.Valid {
		v := activePlace.String
		user.ActivePlaceID = &v
	}
	if readyUntil.Valid {
		t := readyUntil.Time.UTC()
		user.ReadyUntil = &t
	}
	if lat.Valid && lon.Valid {
		user.LastLocation = &models.Coordinate{Latitude: lat.Float64, Longitude: lon.Float64}
	}

	return user, nil
}

func collectUsers(rows pgx.Rows, op string) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows, "scan "+op)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", op, err)
	}

	return users, nil
}

var retryablePgCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"57P01": {}, // admin_shutdown
	"08000": {}, // connection_exception
	"08006": {}, // connection_failure
}

// classify maps driver errors onto the repository error taxonomy.
func classify(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			return ErrNotFound
		}
		if _, ok := retryablePgCodes[pgErr.Code]; ok {
			return Transient(fmt.Errorf("%s: %w", op, err))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ UserRepository = (*PostgresUserRepository)(nil)
