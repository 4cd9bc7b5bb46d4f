package constant

// Stripe metadata keys round-tripped through checkout sessions.
const (
	MetadataKind            = "kind"
	MetadataIsCart          = "is_cart"
	MetadataWorkshopID      = "workshop_id"
	MetadataPricingOption   = "pricing_option"
	MetadataItems           = "items"
	MetadataWaitlistEntryID = "waitlist_entry_id"
	MetadataCartKey         = "cart_key"
	MetadataClaimOwner      = "claim_owner"
	MetadataClaimWorkshopID = "claim_workshop_id"

	// Stripe rejects metadata values longer than this.
	MetadataValueMaxLength = 500
)

const (
	SessionCookieName = "enroll_session"
	UserIDHeader      = "X-User-ID"
	AdminKeyHeader    = "X-Admin-Key"
	SignatureHeader   = "Stripe-Signature"

	ClaimTokenQuery = "waitlist_token"
	ClaimEntryQuery = "entry_id"
)
