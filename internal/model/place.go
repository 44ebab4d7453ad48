package model

// NotAvailable fills city and state when the provider omits them.
const NotAvailable = "N/A"

// ResultRecord is one row of a region's output file. Column order is fixed
// by field order; downstream consumers rely on it.
type ResultRecord struct {
	Position  int      `csv:"Position" json:"position"`
	Title     string   `csv:"Title" json:"title"`
	Link      string   `csv:"Link" json:"link"`
	PlaceID   string   `csv:"Place ID" json:"place_id"`
	Address   string   `csv:"Address" json:"address"`
	City      string   `csv:"City" json:"city"`
	State     string   `csv:"State" json:"state"`
	Phone     string   `csv:"Phone" json:"phone"`
	Rating    *float64 `csv:"Rating" json:"rating,omitempty"`
	Reviews   *int     `csv:"Reviews" json:"reviews,omitempty"`
	Latitude  *float64 `csv:"Latitude" json:"latitude,omitempty"`
	Longitude *float64 `csv:"Longitude" json:"longitude,omitempty"`
	Region    string   `csv:"Region" json:"region"`
}

// PlaceIDColumn is the header of the dedup key column.
const PlaceIDColumn = "Place ID"
