package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tabletalk/backend/internal/db"
	"github.com/tabletalk/backend/internal/models"
)

// PostgresFriendRepository provides PostgreSQL-backed persistence for
// friend edges.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

// CreateEdge persists a new pending edge. The unique index on the
// unordered pair rejects a duplicate in either direction.
func (r *PostgresFriendRepository) CreateEdge(ctx context.Context, edge models.FriendEdge) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO friend_edges (id, requester_id, receiver_id, status, created_at, responded_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, edge.ID, edge.Requester, edge.Receiver, edge.Status, edge.CreatedAt, edge.RespondedAt)
	if err != nil {
		return classify(err, "insert friend edge")
	}

	return nil
}

// FindEdge returns the edge joining the two users, in either direction.
func (r *PostgresFriendRepository) FindEdge(ctx context.Context, a, b string) (models.FriendEdge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendEdge{}, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, requester_id, receiver_id, status, created_at, responded_at
        FROM friend_edges
        WHERE (requester_id = $1 AND receiver_id = $2)
           OR (requester_id = $2 AND receiver_id = $1)
    `, a, b)

	return scanEdge(row)
}

// AcceptEdge promotes a pending edge to accepted. Only the receiver of the
// original request may accept, so direction matters here and nowhere else.
func (r *PostgresFriendRepository) AcceptEdge(ctx context.Context, requesterID, receiverID string, respondedAt time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE friend_edges
        SET status = $3, responded_at = $4
        WHERE requester_id = $1 AND receiver_id = $2 AND status = $5
    `, requesterID, receiverID, models.EdgeStatusAccepted, respondedAt.UTC(), models.EdgeStatusPending)
	if err != nil {
		return classify(err, "accept friend edge")
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteEdge removes the edge between the two users regardless of
// direction or status. Deleting an absent edge is not an error.
func (r *PostgresFriendRepository) DeleteEdge(ctx context.Context, a, b string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        DELETE FROM friend_edges
        WHERE (requester_id = $1 AND receiver_id = $2)
           OR (requester_id = $2 AND receiver_id = $1)
    `, a, b)
	if err != nil {
		return classify(err, "delete friend edge")
	}

	return nil
}

// AcceptedFriendIDs returns the ids of every user connected to userID by
// an accepted edge, whichever side initiated it.
func (r *PostgresFriendRepository) AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT CASE WHEN requester_id = $1 THEN receiver_id ELSE requester_id END
        FROM friend_edges
        WHERE status = $2
          AND (requester_id = $1 OR receiver_id = $1)
    `, userID, models.EdgeStatusAccepted)
	if err != nil {
		return nil, classify(err, "query accepted friend ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan friend id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend ids: %w", err)
	}

	return ids, nil
}

// ListAccepted returns the accepted edges touching userID.
func (r *PostgresFriendRepository) ListAccepted(ctx context.Context, userID string) ([]models.FriendEdge, error) {
	return r.listEdges(ctx, `
        SELECT id, requester_id, receiver_id, status, created_at, responded_at
        FROM friend_edges
        WHERE status = $2 AND (requester_id = $1 OR receiver_id = $1)
        ORDER BY created_at DESC
    `, userID, models.EdgeStatusAccepted)
}

// ListIncoming returns pending edges directed at userID.
func (r *PostgresFriendRepository) ListIncoming(ctx context.Context, userID string) ([]models.FriendEdge, error) {
	return r.listEdges(ctx, `
        SELECT id, requester_id, receiver_id, status, created_at, responded_at
        FROM friend_edges
        WHERE status = $2 AND receiver_id = $1
        ORDER BY created_at DESC
    `, userID, models.EdgeStatusPending)
}

func (r *PostgresFriendRepository) listEdges(ctx context.Context, query string, args ...any) ([]models.FriendEdge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "query friend edges")
	}
	defer rows.Close()

	var edges []models.FriendEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend edges: %w", err)
	}

	return edges, nil
}

func scanEdge(row rowScanner) (models.FriendEdge, error) {
	var (
		edge        models.FriendEdge
		respondedAt sql.NullTime
	)

	if err := row.Scan(&edge.ID, &edge.Requester, &edge.Receiver, &edge.Status, &edge.CreatedAt, &respondedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendEdge{}, ErrNotFound
		}
		return models.FriendEdge{}, fmt.Errorf("scan friend edge: %w", err)
	}

	if respondedAt.Valid {
		t := respondedAt.Time.UTC()
		edge.RespondedAt = &t
	}

	return edge, nil
}

// PostgresPlaceRepository provides read access to the place reference data.
type PostgresPlaceRepository struct {
	pool db.Pool
}

// NewPostgresPlaceRepository constructs a place repository backed by PostgreSQL.
func NewPostgresPlaceRepository(pool db.Pool) *PostgresPlaceRepository {
	return &PostgresPlaceRepository{pool: pool}
}

// ListPlaces returns every known place.
func (r *PostgresPlaceRepository) ListPlaces(ctx context.Context) ([]models.Place, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, name, address, latitude, longitude
        FROM places
        ORDER BY name
    `)
	if err != nil {
		return nil, classify(err, "query places")
	}
	defer rows.Close()

	var places []models.Place
	for rows.Next() {
		var p models.Place
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Location.Latitude, &p.Location.Longitude); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		places = append(places, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}

	return places, nil
}

// FindPlace returns the place with the given id.
func (r *PostgresPlaceRepository) FindPlace(ctx context.Context, id string) (models.Place, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Place{}, Transient(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, name, address, latitude, longitude
        FROM places
        WHERE id = $1
    `, id)

	var p models.Place
	if err := row.Scan(&p.ID, &p.Name, &p.Address, &p.Location.Latitude, &p.Location.Longitude); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Place{}, ErrNotFound
		}
		return models.Place{}, fmt.Errorf("select place: %w", err)
	}

	return p, nil
}

var _ FriendRepository = (*PostgresFriendRepository)(nil)
var _ PlaceRepository = (*PostgresPlaceRepository)(nil)
