package domain

import "time"

type Product struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Code        string    `json:"code" bson:"code"`
	Price       float64   `json:"price" bson:"price"`
	Status      bool      `json:"status" bson:"status"`
	Stock       int       `json:"stock" bson:"stock"`
	Category    string    `json:"category" bson:"category"`
	Thumbnails  []string  `json:"thumbnails" bson:"thumbnails"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at"`
}

// Available is the derived status && stock > 0 flag.
func (p Product) Available() bool {
	return p.Status && p.Stock > 0
}

// ProductInput is the create payload. Status is a pointer so an absent value
// can default to true.
type ProductInput struct {
	Title       string   `json:"title" validate:"required,max=100"`
	Description string   `json:"description" validate:"required,max=500"`
	Code        string   `json:"code" validate:"required,max=20"`
	Price       *float64 `json:"price" validate:"required,gte=0"`
	Status      *bool    `json:"status"`
	Stock       *int     `json:"stock" validate:"required,gte=0"`
	Category    string   `json:"category" validate:"required,max=50"`
	Thumbnails  []string `json:"thumbnails" validate:"max=5"`
}

// ProductPatch carries only the fields a caller wants to change; nil means
// untouched. Ids are immutable, so there is no ID field.
type ProductPatch struct {
	Title       *string   `json:"title" validate:"omitempty,min=1,max=100"`
	Description *string   `json:"description" validate:"omitempty,min=1,max=500"`
	Code        *string   `json:"code" validate:"omitempty,min=1,max=20"`
	Price       *float64  `json:"price" validate:"omitempty,gte=0"`
	Status      *bool     `json:"status"`
	Stock       *int      `json:"stock" validate:"omitempty,gte=0"`
	Category    *string   `json:"category" validate:"omitempty,min=1,max=50"`
	Thumbnails  *[]string `json:"thumbnails" validate:"omitempty,max=5"`
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Code == nil && p.Price == nil &&
		p.Status == nil && p.Stock == nil && p.Category == nil && p.Thumbnails == nil
}

// Apply merges the provided fields into product.
func (p ProductPatch) Apply(product *Product) {
	if p.Title != nil {
		product.Title = *p.Title
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.Code != nil {
		product.Code = *p.Code
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Status != nil {
		product.Status = *p.Status
	}
	if p.Stock != nil {
		product.Stock = *p.Stock
	}
	if p.Category != nil {
		product.Category = *p.Category
	}
	if p.Thumbnails != nil {
		product.Thumbnails = append([]string{}, (*p.Thumbnails)...)
	}
}

// DeletedProduct is the echo returned after a delete.
type DeletedProduct struct {
	Message        string   `json:"message"`
	DeletedProduct *Product `json:"deletedProduct"`
}
