// internal/common/aws/ses.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the SES surface used for email delivery; *ses.Client
// satisfies it and tests substitute a mock.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return ses.NewFromConfig(cfg), nil
}

// BuildEmailInput assembles a UTF-8 email with HTML and plain text parts.
func BuildEmailInput(from, to, subject, htmlBody, textBody string) *ses.SendEmailInput {
	charset := aws.String("UTF-8")
	return &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: charset},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody), Charset: charset},
				Text: &types.Content{Data: aws.String(textBody), Charset: charset},
			},
		},
		Source: aws.String(from),
	}
}
