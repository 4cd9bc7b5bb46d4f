package model

type PricingOption struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Price   int64  `json:"price"`
	Default bool   `json:"default"`
}

// Workshop is owned by the catalog; the enrollment core only reads it.
type Workshop struct {
	ID              int64           `json:"id"`
	Title           string          `json:"title"`
	URL             string          `json:"url"`
	Capacity        int32           `json:"capacity"`
	WaitlistEnabled bool            `json:"waitlist_enabled"`
	CheckoutEnabled bool            `json:"checkout_enabled"`
	Published       bool            `json:"published"`
	Currency        string          `json:"currency"`
	PricingOptions  []PricingOption `json:"pricing_options"`
}

// PricingOption resolves an option by id. An empty id selects the default option,
// falling back to the first option when none is flagged as default.
func (w Workshop) PricingOption(id string) (PricingOption, bool) {
	if len(w.PricingOptions) == 0 {
		return PricingOption{}, false
	}

	if id == "" {
		for _, option := range w.PricingOptions {
			if option.Default {
				return option, true
			}
		}
		return w.PricingOptions[0], true
	}

	for _, option := range w.PricingOptions {
		if option.ID == id {
			return option, true
		}
	}

	return PricingOption{}, false
}

func (w Workshop) Purchasable() bool {
	return w.Published && w.CheckoutEnabled
}

type WorkshopAvailability struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Capacity        int32  `json:"capacity"`
	Completed       int64  `json:"completed"`
	Remaining       int64  `json:"remaining"`
	Unlimited       bool   `json:"unlimited"`
	WaitlistEnabled bool   `json:"waitlist_enabled"`
}
