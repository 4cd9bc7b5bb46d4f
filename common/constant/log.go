package constant

const (
	LogFieldErr      = "error"
	LogFieldPayload  = "payload"
	LogFieldResponse = "response"
	LogFieldTraceId  = "trace_id"

	LogFieldEventID      = "event_id"
	LogFieldEventType    = "event_type"
	LogFieldSessionID    = "session_id"
	LogFieldWorkshopID   = "workshop_id"
	LogFieldEnrollmentID = "enrollment_id"
	LogFieldEntryID      = "entry_id"
)
