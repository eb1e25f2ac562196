package models

// Room is a physical exam venue scoped to a single location.
type Room struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Capacity   int    `db:"capacity" json:"capacity"`
	LocationID string `db:"location_id" json:"location_id"`
}

// Pagination describes list-response paging metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
