package model

import "time"

type CartItem struct {
	WorkshopID      int64  `json:"workshop_id"`
	PricingOptionID string `json:"pricing_option"`
	Price           int64  `json:"price"`
	Title           string `json:"title"`
}

type Cart struct {
	Key       string     `json:"-"`
	Items     []CartItem `json:"items"`
	Currency  string     `json:"currency,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Cart) Index(workshopID int64) int {
	for i, item := range c.Items {
		if item.WorkshopID == workshopID {
			return i
		}
	}
	return -1
}

func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Price
	}
	return total
}

type AddCartItemRequest struct {
	WorkshopID    int64  `json:"workshop_id" validate:"required"`
	PricingOption string `json:"pricing_option" validate:"max=64"`
}

type UpdateCartItemRequest struct {
	PricingOption string `json:"pricing_option" validate:"required,max=64"`
}

type CartResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Cart    *Cart    `json:"cart"`
	Errors  []string `json:"errors,omitempty"`
}

// Owner identifies whose cart and claims a request acts on: the anonymous session
// cookie, and the account id once the gateway has authenticated the visitor.
type Owner struct {
	SessionID string
	UserID    string
}

// Key is the account key when authenticated, otherwise the session key.
func (o Owner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "session:" + o.SessionID
}

// Keys lists every identity of the owner, account first.
func (o Owner) Keys() []string {
	keys := make([]string, 0, 2)
	if o.UserID != "" {
		keys = append(keys, "user:"+o.UserID)
	}
	if o.SessionID != "" {
		keys = append(keys, "session:"+o.SessionID)
	}
	return keys
}
