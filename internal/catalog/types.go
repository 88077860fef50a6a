package catalog

import "time"

// Category groups products.
type Category struct {
	CategoryID  string    `json:"category_id" dynamodbav:"category_id"`
	Name        string    `json:"name" dynamodbav:"name"`
	Description string    `json:"description,omitempty" dynamodbav:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

type CategoryChanges struct {
	Name        *string
	Description *string
}

// Product is the item stored in the products table. CategoryName is copied
// from the category when the product is written and is not refreshed when the
// category is renamed or deleted.
type Product struct {
	ProductID    string    `json:"product_id" dynamodbav:"product_id"`
	Name         string    `json:"name" dynamodbav:"name"`
	Description  string    `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Price        float64   `json:"price" dynamodbav:"price"`
	Stock        int       `json:"stock" dynamodbav:"stock"`
	CategoryID   string    `json:"category_id" dynamodbav:"category_id"`
	CategoryName string    `json:"category_name" dynamodbav:"category_name"`
	ImageURL     string    `json:"image_url,omitempty" dynamodbav:"image_url,omitempty"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

type ProductChanges struct {
	Name        *string
	Description *string
	Price       *float64
	Stock       *int
	CategoryID  *string
	ImageURL    *string
}

// ProductFilter narrows product listings. Empty fields match everything.
type ProductFilter struct {
	CategoryID string
}
