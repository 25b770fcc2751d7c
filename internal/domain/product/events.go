package product

const (
	EventProductRegistered = "ProductRegistered"
	EventProductDeleted    = "ProductDeleted"
	EventCommentRegistered = "CommentRegistered"
	EventCommentDeleted    = "CommentDeleted"
)

type ProductRegistered struct {
	Product Product `json:"product"`
}

type ProductDeleted struct {
	Product Product `json:"product"`
}

// CommentRegistered arrives from the comment collaborator; only the rate
// contribution matters to the catalog.
type CommentRegistered struct {
	ProductID string  `json:"product_id"`
	Rate      float64 `json:"rate"`
}

type CommentDeleted struct {
	ProductID string  `json:"product_id"`
	Rate      float64 `json:"rate"`
}
