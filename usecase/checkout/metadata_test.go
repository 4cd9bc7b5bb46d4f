package checkout

import (
	"fmt"
	"strings"
	"testing"
	"workshop-enrollment/common/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataEncodeDecode(t *testing.T) {
	tests := []struct {
		name     string
		metadata Metadata
		encoded  map[string]string
	}{
		{
			name:     "single",
			metadata: Metadata{Kind: KindSingle, WorkshopID: 5, PricingOption: "adult"},
			encoded: map[string]string{
				"kind": "single", "is_cart": "false", "workshop_id": "5", "pricing_option": "adult",
			},
		},
		{
			name: "cart with claim",
			metadata: Metadata{
				Kind: KindCart,
				Items: []MetadataItem{
					{WorkshopID: 5, PricingOption: "adult", Price: 75},
					{WorkshopID: 9, PricingOption: "", Price: 40},
				},
				WaitlistEntryID: 12,
				ClaimOwner:      "session:7f1c",
				ClaimWorkshopID: 9,
				CartKey:         "cart:session:7f1c",
			},
			encoded: map[string]string{
				"kind":              "cart",
				"is_cart":           "true",
				"items":             `[{"id":5,"pricing_option":"adult","price":75},{"id":9,"pricing_option":"","price":40}]`,
				"waitlist_entry_id": "12",
				"claim_owner":       "session:7f1c",
				"claim_workshop_id": "9",
				"cart_key":          "cart:session:7f1c",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := tc.metadata.Encode()
			require.NoError(t, err)
			assert.Equal(t, tc.encoded, encoded)

			decoded, err := DecodeMetadata(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.metadata, decoded)
		})
	}
}

func TestEncodeRejectsLargeCart(t *testing.T) {
	m := Metadata{Kind: KindCart}
	for i := range 20 {
		m.Items = append(m.Items, MetadataItem{WorkshopID: int64(1000 + i), PricingOption: "early-bird-adult", Price: 12500})
	}

	_, err := m.Encode()
	assert.ErrorIs(t, err, errs.ErrCartTooLarge)
}

func TestDecodeMetadata(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]string
		expected  Metadata
		expectErr bool
	}{
		{
			name:     "legacy cart flag",
			raw:      map[string]string{"is_cart": "true", "items": `[{"id":3,"price":10}]`},
			expected: Metadata{Kind: KindCart, Items: []MetadataItem{{WorkshopID: 3, Price: 10}}},
		},
		{
			name:     "legacy single",
			raw:      map[string]string{"workshop_id": "8"},
			expected: Metadata{Kind: KindSingle, WorkshopID: 8},
		},
		{
			name:     "single claim without claim workshop",
			raw:      map[string]string{"kind": "single", "workshop_id": "8", "waitlist_entry_id": "3", "claim_owner": "user:u1"},
			expected: Metadata{Kind: KindSingle, WorkshopID: 8, WaitlistEntryID: 3, ClaimOwner: "user:u1", ClaimWorkshopID: 8},
		},
		{name: "empty", raw: map[string]string{}, expectErr: true},
		{name: "bad workshop id", raw: map[string]string{"kind": "single", "workshop_id": "x"}, expectErr: true},
		{name: "negative workshop id", raw: map[string]string{"kind": "single", "workshop_id": "-4"}, expectErr: true},
		{name: "items not json", raw: map[string]string{"kind": "cart", "items": "5,9"}, expectErr: true},
		{name: "empty items", raw: map[string]string{"kind": "cart", "items": "[]"}, expectErr: true},
		{name: "item without price", raw: map[string]string{"kind": "cart", "items": `[{"id":3}]`}, expectErr: true},
		{name: "unknown kind", raw: map[string]string{"kind": "gift"}, expectErr: true},
		{
			name:      "bad entry id",
			raw:       map[string]string{"kind": "single", "workshop_id": "8", "waitlist_entry_id": "abc"},
			expectErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := DecodeMetadata(tc.raw)
			if tc.expectErr {
				assert.ErrorIs(t, err, errs.ErrMalformedMetadata)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, decoded)
		})
	}
}

func TestEncodeFitsLimit(t *testing.T) {
	m := Metadata{Kind: KindCart}
	for i := range 5 {
		m.Items = append(m.Items, MetadataItem{WorkshopID: int64(i + 1), PricingOption: "adult", Price: 5000})
	}

	encoded, err := m.Encode()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(encoded["items"]), 500)
	assert.True(t, strings.HasPrefix(encoded["items"], fmt.Sprintf(`[{"id":%d`, 1)))
}
