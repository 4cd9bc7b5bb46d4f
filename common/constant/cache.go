package constant

import "time"

const (
	CartKey               = "cart:%s"
	ClaimBindingKey       = "claim:%s:workshop:%d"
	WebhookProcessedKey   = "webhook:processed_events"
	WebhookEventLockKey   = "webhook:event_lock:%s"
	WaitlistNotifyLockKey = "waitlist:notify_lock:%d"
)

const (
	CartDefaultTTL            = 30 * 24 * time.Hour
	ClaimSessionDefaultTTL    = 1 * time.Hour
	ClaimTokenDefaultTTL      = 48 * time.Hour
	WebhookDedupDefaultWindow = 1000
	WebhookLockDefaultTTL     = 1 * time.Minute
	WebhookDefaultTolerance   = 300 * time.Second
	WaitlistNotifyLockTTL     = 30 * time.Second
)
