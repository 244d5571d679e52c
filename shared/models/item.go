package models

// RegisterBrandRequest is the body of POST /brands.
type RegisterBrandRequest struct {
	Name string `json:"name"`
}

// ListProductRequest is the body of POST /products.
type ListProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       uint64 `json:"price"`
}

// CreateAuctionRequest is the body of POST /auctions.
// Duration is measured in blocks.
type CreateAuctionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinPrice    uint64 `json:"min_price"`
	Duration    uint64 `json:"duration"`
}

// ReviewRequest is the body of POST /products/{id}/reviews.
type ReviewRequest struct {
	Rating  uint64 `json:"rating"`
	Comment string `json:"comment"`
}

// AdvanceRequest asks a dev node to mine empty blocks up to Height.
type AdvanceRequest struct {
	Height uint64 `json:"height"`
}

// AuctionStatus constants
const (
	AuctionStatusActive = "active"
	AuctionStatusEnded  = "ended"
)
