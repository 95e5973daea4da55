package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/bursar/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"

	sendAttempts = 3
	retryDelay   = 2 * time.Second // doubled after each failed attempt

	sendgridAPI = sendgrid.API // mockable
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && (msg.HasContent() || msg.HasAttachments()) {
				svc.send(*msg)
			}
		}()
	}
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(svc.getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(svc.getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(svc.getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(
		sgmail.NewContent("text/plain", msg.TextContent),
		sgmail.NewContent("text/html", msg.HTMLContent),
	)

	for _, a := range msg.Attachments {
		m.AddAttachment(svc.getSGAttachment(a))
	}

	return m
}

func (svc sendgridService) getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc sendgridService) getSGAttachment(at core.Attachment) *sgmail.Attachment {
	return &sgmail.Attachment{
		Content:     at.Content.String(),
		Type:        at.ContentType,
		Filename:    at.Filename,
		Disposition: "attachment",
	}
}

// send posts msg, retrying transport errors and 5xx responses up to sendAttempts times.
// 4xx responses are not retried.
func (svc sendgridService) send(msg core.EmailMessage) {
	body := sgmail.GetRequestBody(svc.prepare(msg))
	delay := retryDelay

	for attempt := 1; ; attempt++ {
		req := sendgrid.GetRequest(svc.key, endpoint, host)
		req.Method = http.MethodPost
		req.Body = body

		res, err := sendgridAPI(req)
		retryable := err != nil || res.StatusCode >= http.StatusInternalServerError
		switch {
		case err == nil && res.StatusCode < http.StatusBadRequest:
			return
		case !retryable || attempt >= sendAttempts:
			svc.logFailure(msg, res, err, attempt)
			return
		}
		time.Sleep(delay)
		delay *= 2
	}
}

func (svc sendgridService) logFailure(msg core.EmailMessage, res *rest.Response, err error, attempts int) {
	data := map[string]interface{}{"subject": msg.Subject, "attempts": attempts}
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err, data)
		return
	}
	svc.logger.Error(fmt.Sprintf("sending email - status: %d - Body: %s", res.StatusCode, res.Body), data)
}
