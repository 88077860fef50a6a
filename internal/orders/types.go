package orders

import (
	"fmt"
	"time"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

// MaxQuantity bounds how many units of one product an order may take.
const MaxQuantity = 10000

// Order statuses
const (
	StatusPending    = "Pending"
	StatusPaid       = "Paid"
	StatusProcessing = "Processing"
	StatusShipped    = "Shipped"
	StatusDelivered  = "Delivered"
	StatusCancelled  = "Cancelled"
)

// Item is a line of the order as submitted; it is not re-read from the
// catalog later.
type Item struct {
	ProductID string  `json:"product_id" dynamodbav:"product_id"`
	Name      string  `json:"name" dynamodbav:"name"`
	Price     float64 `json:"price" dynamodbav:"price"`
	Quantity  int     `json:"quantity" dynamodbav:"quantity"`
}

type Billing struct {
	FullName string `json:"full_name" dynamodbav:"full_name"`
	Email    string `json:"email" dynamodbav:"email"`
	Address  string `json:"address" dynamodbav:"address"`
	State    string `json:"state,omitempty" dynamodbav:"state,omitempty"`
	District string `json:"district,omitempty" dynamodbav:"district,omitempty"`
	Taluka   string `json:"taluka,omitempty" dynamodbav:"taluka,omitempty"`
	Village  string `json:"village,omitempty" dynamodbav:"village,omitempty"`
	Pincode  string `json:"pincode,omitempty" dynamodbav:"pincode,omitempty"`
}

// UserSnapshot is the buyer's profile at the time of ordering.
type UserSnapshot struct {
	UserID      string `json:"user_id" dynamodbav:"user_id"`
	Email       string `json:"email" dynamodbav:"email"`
	FirstName   string `json:"first_name" dynamodbav:"first_name"`
	LastName    string `json:"last_name" dynamodbav:"last_name"`
	PhoneNumber string `json:"phone_number,omitempty" dynamodbav:"phone_number,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID         string       `json:"order_id" dynamodbav:"order_id"` // PK
	UserID          string       `json:"user_id" dynamodbav:"user_id"`   // GSI user_id-index
	UserDetails     UserSnapshot `json:"user_details" dynamodbav:"user_details"`
	Items           []Item       `json:"items" dynamodbav:"items"`
	BillingDetails  Billing      `json:"billing_details" dynamodbav:"billing_details"`
	ShippingAddress string       `json:"shipping_address" dynamodbav:"shipping_address"`
	TotalAmount     float64      `json:"total_amount" dynamodbav:"total_amount"`
	Status          string       `json:"status" dynamodbav:"status"`
	CreatedDate     time.Time    `json:"created_date" dynamodbav:"created_date"`
	UpdatedDate     time.Time    `json:"updated_date" dynamodbav:"updated_date"`
}

// ProductIDs returns the distinct product ids in item order.
func (o *Order) ProductIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range o.Items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			out = append(out, it.ProductID)
		}
	}
	return out
}

// quantities sums quantities per product. Every line and every per-product
// total must be within 1..MaxQuantity; lines are checked before they are
// added, so the sums cannot overflow.
func (o *Order) quantities() (map[string]int, error) {
	q := map[string]int{}
	for i, it := range o.Items {
		if it.Quantity <= 0 || it.Quantity > MaxQuantity {
			return nil, quantityError(fmt.Sprintf("items[%d].quantity", i), it.ProductID)
		}
		q[it.ProductID] += it.Quantity
		if q[it.ProductID] > MaxQuantity {
			return nil, quantityError("items", it.ProductID)
		}
	}
	return q, nil
}

func quantityError(field, productID string) error {
	return apperr.Validation(
		fmt.Sprintf("quantity of product %s must be between 1 and %d", productID, MaxQuantity),
		map[string]string{field: fmt.Sprintf("must be between 1 and %d", MaxQuantity)},
	)
}
