package carts

import "time"

// Item is one line in a user's cart. CartID is sequential per user.
type Item struct {
	CartID      string    `json:"cart_id" dynamodbav:"cart_id"`
	ProductID   string    `json:"product_id" dynamodbav:"product_id"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	Name        string    `json:"name" dynamodbav:"name"`
	Price       float64   `json:"price" dynamodbav:"price"`
	Quantity    int       `json:"quantity" dynamodbav:"quantity"`
	CreatedDate time.Time `json:"created_date" dynamodbav:"created_date"`
}

// cart is the single document per user in the carts table.
type cart struct {
	UserID    string    `dynamodbav:"user_id"`
	Items     []Item    `dynamodbav:"items"`
	Version   int64     `dynamodbav:"version"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}
