package model

// ListingSummary carries the listing fields shown next to a message.
// ImageURL is the first listing image by position, or "" when the listing has none.
type ListingSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SellerID string `json:"seller_id"`
	ImageURL string `json:"image_url,omitempty"`
}
