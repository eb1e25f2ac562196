package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusops/exam-scheduler-api/internal/models"
)

// RoomRepository reads the room pool for a location.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// ListByLocation returns every room at the location, largest first.
// Capacity is never aggregated across locations.
func (r *RoomRepository) ListByLocation(ctx context.Context, locationID string) ([]models.Room, error) {
	const query = `SELECT id, name, capacity, location_id FROM rooms
        WHERE location_id = $1 ORDER BY capacity DESC, id ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, locationID); err != nil {
		return nil, fmt.Errorf("list rooms by location: %w", err)
	}
	return rooms, nil
}
