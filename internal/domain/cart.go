package domain

import "time"

type Cart struct {
	ID        string     `json:"id" bson:"_id,omitempty"`
	Items     []CartItem `json:"products" bson:"products"`
	Version   int64      `json:"-" bson:"version"`
	CreatedAt time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updated_at"`
}

// CartItem references a product by id; the product may have been deleted
// since the item was added.
type CartItem struct {
	ProductID string `json:"product" bson:"product"`
	Quantity  int    `json:"quantity" bson:"quantity"`
}

// Find returns the index of the item for productID, or -1.
func (c *Cart) Find(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// TotalProducts sums quantities across every row, dangling ones included.
func (c *Cart) TotalProducts() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// PopulatedCart is a cart whose product references were resolved against
// the catalog. Product is nil for references to deleted products.
type PopulatedCart struct {
	ID             string          `json:"id"`
	Items          []PopulatedItem `json:"products"`
	TotalProducts  int             `json:"totalProducts"`
	UniqueProducts int             `json:"uniqueProducts"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type PopulatedItem struct {
	ProductID string   `json:"productId"`
	Product   *Product `json:"product"`
	Quantity  int      `json:"quantity"`
}

// Populate attaches product snapshots from products (keyed by id) to cart.
func Populate(cart *Cart, products map[string]*Product) *PopulatedCart {
	out := &PopulatedCart{
		ID:             cart.ID,
		Items:          make([]PopulatedItem, 0, len(cart.Items)),
		TotalProducts:  cart.TotalProducts(),
		UniqueProducts: len(cart.Items),
		CreatedAt:      cart.CreatedAt,
		UpdatedAt:      cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		out.Items = append(out.Items, PopulatedItem{
			ProductID: item.ProductID,
			Product:   products[item.ProductID],
			Quantity:  item.Quantity,
		})
	}
	return out
}

type CartTotal struct {
	CartID          string  `json:"cartId"`
	Total           float64 `json:"total"`
	TotalItemCount  int     `json:"totalProducts"`
	UniqueItemCount int     `json:"uniqueProducts"`
	Items           int     `json:"items"`
}

type AvailabilityReport struct {
	IsValid          bool              `json:"isValid"`
	UnavailableItems []UnavailableItem `json:"unavailableProducts"`
}

type UnavailableItem struct {
	ProductID    string `json:"productId"`
	ProductTitle string `json:"product"`
	Requested    int    `json:"requested"`
	Available    int    `json:"available"`
	Status       bool   `json:"status"`
}

// CartItemInput is one entry of a replace-all request. Quantity stays a
// float so non-integers can be rejected instead of silently truncated.
type CartItemInput struct {
	ProductID string   `json:"product"`
	Quantity  *float64 `json:"quantity"`
}

// DeletedCart is the echo returned after a cart is destroyed.
type DeletedCart struct {
	Message     string `json:"message"`
	DeletedCart *Cart  `json:"deletedCart"`
}
