package domain

import "time"

type Category string

const (
	CategoryCafe       Category = "cafe"
	CategoryRestaurant Category = "restaurant"
	CategoryCulture    Category = "culture"
	CategoryBar        Category = "bar"
	CategoryStay       Category = "stay"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

// MenuItem is only meaningful for cafe/restaurant places.
type MenuItem struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type Place struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Lat         *float64   `json:"lat"` // nil until moderator approval
	Lng         *float64   `json:"lng"`
	City        string     `json:"city"`
	Category    Category   `json:"category"`
	Vibe        *string    `json:"vibe"`
	ImageURL    *string    `json:"image_url"`
	GalleryURLs []string   `json:"gallery_urls"`
	Address     *string    `json:"address"`
	RegionID    *string    `json:"region_id"`
	Status      Status     `json:"status"`
	CuratedBy   *string    `json:"curated_by"`
	MenuItems   []MenuItem `json:"menu_items"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PlaceDraft is a user submission; the backend assigns id, timestamps and
// pending status. Coordinates are left unset until a moderator approves.
type PlaceDraft struct {
	Name      string     `json:"name"`
	City      string     `json:"city"`
	Category  Category   `json:"category"`
	Vibe      *string    `json:"vibe,omitempty"`
	Address   *string    `json:"address,omitempty"`
	ImageURL  *string    `json:"image_url,omitempty"`
	MenuItems []MenuItem `json:"menu_items,omitempty"`
}
