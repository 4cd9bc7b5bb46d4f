package constant

const (
	QueueStreamName = "workshop_enrollment_queue_stream"
)

const (
	AllWildcard        = "events.>"
	EnrollmentWildcard = "events.enrollment.>"
	EmailWildcard      = "events.email.>"

	SubjectEnrollmentPrefix  = "events.enrollment."
	SubjectEnrollmentCreated = SubjectEnrollmentPrefix + "created"
	SubjectEnrollmentDone    = SubjectEnrollmentPrefix + "completed"
	SubjectEnrollmentRefund  = SubjectEnrollmentPrefix + "refunded"
	SubjectEnrollmentUpdated = SubjectEnrollmentPrefix + "status_updated"
	SubjectSendEmail         = "events.email.send"
)
