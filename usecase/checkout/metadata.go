package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
)

type Kind string

const (
	KindSingle Kind = "single"
	KindCart   Kind = "cart"
)

type MetadataItem struct {
	WorkshopID    int64  `json:"id"`
	PricingOption string `json:"pricing_option"`
	Price         int64  `json:"price"`
}

// Metadata is everything reconciliation needs to know about a checkout, carried
// through the payment processor as a flat string map.
type Metadata struct {
	Kind            Kind
	WorkshopID      int64
	PricingOption   string
	Items           []MetadataItem
	WaitlistEntryID int64
	// ClaimOwner is the owner key the waitlist claim was bound to.
	ClaimOwner string
	// ClaimWorkshopID is the workshop the waitlist claim admits to. A checkout carries
	// at most one claim.
	ClaimWorkshopID int64
	CartKey         string
}

func (m Metadata) Encode() (map[string]string, error) {
	out := map[string]string{
		constant.MetadataKind:   string(m.Kind),
		constant.MetadataIsCart: strconv.FormatBool(m.Kind == KindCart),
	}

	switch m.Kind {
	case KindSingle:
		if m.WorkshopID <= 0 {
			return nil, fmt.Errorf("%w: missing workshop id", errs.ErrMalformedMetadata)
		}
		out[constant.MetadataWorkshopID] = strconv.FormatInt(m.WorkshopID, 10)
		out[constant.MetadataPricingOption] = m.PricingOption
	case KindCart:
		if len(m.Items) == 0 {
			return nil, errs.ErrCartEmpty
		}
		items, err := json.Marshal(m.Items)
		if err != nil {
			return nil, err
		}
		if len(items) > constant.MetadataValueMaxLength {
			return nil, errs.ErrCartTooLarge
		}
		out[constant.MetadataItems] = string(items)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", errs.ErrMalformedMetadata, m.Kind)
	}

	if m.WaitlistEntryID > 0 {
		out[constant.MetadataWaitlistEntryID] = strconv.FormatInt(m.WaitlistEntryID, 10)
		out[constant.MetadataClaimOwner] = m.ClaimOwner
		if m.ClaimWorkshopID > 0 {
			out[constant.MetadataClaimWorkshopID] = strconv.FormatInt(m.ClaimWorkshopID, 10)
		}
	}
	if m.CartKey != "" {
		if len(m.CartKey) > constant.MetadataValueMaxLength {
			return nil, fmt.Errorf("%w: cart key too long", errs.ErrMalformedMetadata)
		}
		out[constant.MetadataCartKey] = m.CartKey
	}

	return out, nil
}

// DecodeMetadata parses and validates session metadata. Sessions created before the
// kind key existed are recognised by is_cart.
func DecodeMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata

	kind := Kind(raw[constant.MetadataKind])
	if kind == "" {
		if raw[constant.MetadataIsCart] == "true" {
			kind = KindCart
		} else {
			kind = KindSingle
		}
	}
	m.Kind = kind

	switch kind {
	case KindSingle:
		id, err := parseID(raw, constant.MetadataWorkshopID)
		if err != nil {
			return Metadata{}, err
		}
		if id == 0 {
			return Metadata{}, fmt.Errorf("%w: missing %s", errs.ErrMalformedMetadata, constant.MetadataWorkshopID)
		}
		m.WorkshopID = id
		m.PricingOption = raw[constant.MetadataPricingOption]
	case KindCart:
		encoded := raw[constant.MetadataItems]
		if encoded == "" {
			return Metadata{}, fmt.Errorf("%w: missing %s", errs.ErrMalformedMetadata, constant.MetadataItems)
		}
		if err := json.Unmarshal([]byte(encoded), &m.Items); err != nil {
			return Metadata{}, fmt.Errorf("%w: items: %v", errs.ErrMalformedMetadata, err)
		}
		if len(m.Items) == 0 {
			return Metadata{}, fmt.Errorf("%w: empty items", errs.ErrMalformedMetadata)
		}
		for i, item := range m.Items {
			if item.WorkshopID <= 0 || item.Price <= 0 {
				return Metadata{}, fmt.Errorf("%w: item %d", errs.ErrMalformedMetadata, i)
			}
		}
	default:
		return Metadata{}, fmt.Errorf("%w: unknown kind %q", errs.ErrMalformedMetadata, kind)
	}

	entryID, err := parseID(raw, constant.MetadataWaitlistEntryID)
	if err != nil {
		return Metadata{}, err
	}
	m.WaitlistEntryID = entryID
	if entryID > 0 {
		m.ClaimOwner = raw[constant.MetadataClaimOwner]
		if m.ClaimWorkshopID, err = parseID(raw, constant.MetadataClaimWorkshopID); err != nil {
			return Metadata{}, err
		}
		if m.ClaimWorkshopID == 0 && kind == KindSingle {
			m.ClaimWorkshopID = m.WorkshopID
		}
	}
	m.CartKey = raw[constant.MetadataCartKey]

	return m, nil
}

func parseID(raw map[string]string, key string) (int64, error) {
	value, ok := raw[key]
	if !ok || value == "" {
		return 0, nil
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", errs.ErrMalformedMetadata, key, value)
	}
	return id, nil
}
