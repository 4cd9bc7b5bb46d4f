package constant

const EmailEnrollmentConfirmationTemplate = `
Dear %s,

Thank you for enrolling! Your payment has been received and your seat is confirmed.

Enrollment Details:
------------------------------------------
Enrollment ID: %s
Workshop: %s
Total Amount: %s
------------------------------------------

We will send the workshop details closer to the date.

Best regards,
Workshop Team

Note: This is an automated message, please do not reply to this email.
`

const EmailEnrollmentRefundTemplate = `
Dear %s,

Your enrollment has been refunded.

Enrollment Details:
------------------------------------------
Enrollment ID: %s
Workshop: %s
Refunded Amount: %s
------------------------------------------

The refund may take a few business days to appear on your statement.

Best regards,
Workshop Team

Note: This is an automated message, please do not reply to this email.
`

const EmailWaitlistClaimTemplate = `
Dear %s,

Good news! A seat has opened up in %s and you are next on the waitlist.

Claim your seat here:
%s

This link is personal and expires on %s. If you do not complete your enrollment
before then, the seat will be offered to the next person in line.

Best regards,
Workshop Team

Note: This is an automated message, please do not reply to this email.
`
