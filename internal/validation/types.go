package validation

// RegisterRequest is the payload for POST /auth/register. Any role sent by
// the client is ignored.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"` // bcrypt reads at most 72 bytes
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=20"`
	Street      string `json:"street" validate:"max=200"`
	Address     string `json:"address" validate:"max=500"`
	State       string `json:"state" validate:"max=100"`
	District    string `json:"district" validate:"max=100"`
	Taluka      string `json:"taluka" validate:"max=100"`
	Village     string `json:"village" validate:"max=100"`
	Pincode     string `json:"pincode" validate:"omitempty,numeric,max=10"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserRequest is a partial profile update; absent fields are untouched.
type UpdateUserRequest struct {
	Email       *string `json:"email" validate:"omitempty,email,max=254"`
	Password    *string `json:"password" validate:"omitempty,min=8,max=72"`
	FirstName   *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	Street      *string `json:"street" validate:"omitempty,max=200"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	State       *string `json:"state" validate:"omitempty,max=100"`
	District    *string `json:"district" validate:"omitempty,max=100"`
	Taluka      *string `json:"taluka" validate:"omitempty,max=100"`
	Village     *string `json:"village" validate:"omitempty,max=100"`
	Pincode     *string `json:"pincode" validate:"omitempty,numeric,max=10"`
	Role        *string `json:"role" validate:"omitempty,oneof=customer admin"`
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

type UpdateCategoryRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type ProductRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	CategoryID  string  `json:"category_id" validate:"required,numeric"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
}

type UpdateProductRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=5000"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0"`
	CategoryID  *string  `json:"category_id" validate:"omitempty,numeric"`
	ImageURL    *string  `json:"image_url" validate:"omitempty,url"`
}

// CartAddRequest is the payload for POST /cart/add. Name and price come from
// the product, not the client.
type CartAddRequest struct {
	ProductID string `json:"product_id" validate:"required,numeric"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=10000"`
}

type CartUpdateRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=10000"`
}

// Item represents a single order line item.
type Item struct {
	ProductID string  `json:"product_id" validate:"required,numeric"`
	Name      string  `json:"name" validate:"required,max=200"`
	Price     float64 `json:"price" validate:"gte=0"`             // price per unit
	Quantity  int     `json:"quantity" validate:"required,min=1,max=10000"` // must be >= 1
}

type Billing struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Address  string `json:"address" validate:"required,max=500"`
	State    string `json:"state" validate:"max=100"`
	District string `json:"district" validate:"max=100"`
	Taluka   string `json:"taluka" validate:"max=100"`
	Village  string `json:"village" validate:"max=100"`
	Pincode  string `json:"pincode" validate:"omitempty,numeric,max=10"`
}

// PlaceOrderRequest is the payload for POST /orders/
type PlaceOrderRequest struct {
	Items           []Item  `json:"items" validate:"required,min=1,max=100,dive"` // at least one item
	BillingDetails  Billing `json:"billing_details"`
	ShippingAddress string  `json:"shipping_address" validate:"required,max=500"`
	TotalAmount     float64 `json:"total_amount" validate:"gte=0"` // total amount client claims
}

type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=Pending Paid Processing Shipped Delivered Cancelled"`
}

// CheckoutRequest is the payload for POST /payments/checkout
type CheckoutRequest struct {
	OrderID        string  `json:"order_id" validate:"required,numeric"`
	Amount         float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod  string  `json:"payment_method" validate:"required,max=50"`
	BillingAddress string  `json:"billing_address" validate:"max=500"`
}

type ReviewRequest struct {
	ProductID string `json:"product_id" validate:"required,numeric"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	Review    string `json:"review" validate:"max=5000"`
}

type UpdateReviewRequest struct {
	Rating *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Review *string `json:"review" validate:"omitempty,max=5000"`
}

type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,max=5000"`
}
