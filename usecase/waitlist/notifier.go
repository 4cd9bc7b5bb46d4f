package waitlist

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/contract"
	"workshop-enrollment/model"
)

// EmailNotifier queues the claim email on the email subject. The send itself happens
// in the email consumer.
type EmailNotifier struct {
	Publisher contract.Publisher
	// ClaimURL is the public address of the claim endpoint.
	ClaimURL string
	Location *time.Location
}

func (n EmailNotifier) NotifyClaim(ctx context.Context, entry model.WaitlistEntry, workshop model.Workshop, token string, expiresAt time.Time) error {
	link, err := n.claimLink(token, entry.ID)
	if err != nil {
		return err
	}

	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}

	return common.PublishMessage(ctx, n.Publisher, constant.SubjectSendEmail, model.SendEmailEventMessage{
		To:      entry.Email,
		Subject: fmt.Sprintf("A seat opened up in %s", workshop.Title),
		Body: fmt.Sprintf(constant.EmailWaitlistClaimTemplate,
			entry.Name, workshop.Title, link, expiresAt.In(loc).Format(time.DateTime)),
	})
}

func (n EmailNotifier) claimLink(token string, entryID int64) (string, error) {
	u, err := url.Parse(n.ClaimURL)
	if err != nil {
		return "", fmt.Errorf("parse claim url: %w", err)
	}

	query := u.Query()
	query.Set(constant.ClaimTokenQuery, token)
	query.Set(constant.ClaimEntryQuery, strconv.FormatInt(entryID, 10))
	u.RawQuery = query.Encode()

	return u.String(), nil
}
