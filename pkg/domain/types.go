package domain

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User is the denormalized profile snapshot the client keeps for display.
type User struct {
	ID       string   `json:"userId"`
	FullName string   `json:"fullName"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}

// Wallet is returned by the verification endpoints. It is display-only.
type Wallet struct {
	ID       string  `json:"walletId,omitempty"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency,omitempty"`
}

// Product is the catalog entry a shopper adds to the cart.
type Product struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Price  float64 `json:"price"`
}

// LineItem is one distinct product in the cart.
type LineItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}
