package order

const (
	EventOrderRegistered = "OrderRegistered"
	EventOrderCanceled   = "OrderCanceled"
)

type OrderRegistered struct {
	Order Order `json:"order"`
}

type OrderCanceled struct {
	Order Order `json:"order"`
}
