package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"clinicpulse/internal/types"
)

// mockSESAPI implements SESAPI for testing.
type mockSESAPI struct {
	sendEmailFunc func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func TestSESSend_Success(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{
				MessageId: aws.String("ses-msg-abc123"),
			}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{
		ConfigSetName: "clinicpulse-tracking",
	})

	input := types.SendInput{
		To: "admin@clinic.example",
		From: types.EmailAddress{
			Name:    "ClinicPulse Reports",
			Address: "reports@clinicpulse.io",
		},
		Subject:     "Clinic Activity Report: Sunrise Clinic (last 3 days)",
		BodyHTML:    "<h1>Report</h1>",
		BodyText:    "Report",
		ReferenceID: "job_20260310080000_org_1",
	}

	msgID, err := client.Send(context.Background(), input)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if msgID != "ses-msg-abc123" {
		t.Errorf("expected message ID ses-msg-abc123, got %s", msgID)
	}

	wantFrom := "ClinicPulse Reports <reports@clinicpulse.io>"
	if aws.ToString(capturedInput.FromEmailAddress) != wantFrom {
		t.Errorf("from = %q, want %q", aws.ToString(capturedInput.FromEmailAddress), wantFrom)
	}

	if len(capturedInput.Destination.ToAddresses) != 1 || capturedInput.Destination.ToAddresses[0] != "admin@clinic.example" {
		t.Errorf("unexpected destination: %v", capturedInput.Destination.ToAddresses)
	}

	if aws.ToString(capturedInput.Content.Simple.Body.Html.Data) != "<h1>Report</h1>" {
		t.Errorf("html body = %q", aws.ToString(capturedInput.Content.Simple.Body.Html.Data))
	}
	if aws.ToString(capturedInput.Content.Simple.Body.Text.Data) != "Report" {
		t.Errorf("text body = %q", aws.ToString(capturedInput.Content.Simple.Body.Text.Data))
	}

	if aws.ToString(capturedInput.ConfigurationSetName) != "clinicpulse-tracking" {
		t.Errorf("config set = %q, want clinicpulse-tracking", aws.ToString(capturedInput.ConfigurationSetName))
	}

	if len(capturedInput.EmailTags) != 1 {
		t.Fatalf("expected 1 email tag, got %d", len(capturedInput.EmailTags))
	}
	if aws.ToString(capturedInput.EmailTags[0].Name) != "ReferenceID" {
		t.Errorf("tag name = %q", aws.ToString(capturedInput.EmailTags[0].Name))
	}
	if aws.ToString(capturedInput.EmailTags[0].Value) != "job_20260310080000_org_1" {
		t.Errorf("tag value = %q", aws.ToString(capturedInput.EmailTags[0].Value))
	}
}

func TestSESSend_NoFromName(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-noname")}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	_, err := client.Send(context.Background(), types.SendInput{
		To:      "admin@clinic.example",
		From:    types.EmailAddress{Address: "reports@clinicpulse.io"},
		Subject: "Test",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// When name is empty, from should be just the address.
	if aws.ToString(capturedInput.FromEmailAddress) != "reports@clinicpulse.io" {
		t.Errorf("from = %q, want bare address", aws.ToString(capturedInput.FromEmailAddress))
	}
}

func TestSESSend_NoReferenceID(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-noref")}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	_, err := client.Send(context.Background(), types.SendInput{
		To:      "admin@clinic.example",
		From:    types.EmailAddress{Address: "reports@clinicpulse.io"},
		Subject: "Test",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(capturedInput.EmailTags) != 0 {
		t.Errorf("expected no email tags when no reference ID, got %d", len(capturedInput.EmailTags))
	}
}

func TestSESSend_MessageRejected(t *testing.T) {
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, &sestypes.MessageRejected{Message: aws.String("Email address is on the suppression list")}
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	_, err := client.Send(context.Background(), types.SendInput{
		To:      "blocked@clinic.example",
		From:    types.EmailAddress{Address: "reports@clinicpulse.io"},
		Subject: "Test",
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected %s, got %s", types.ErrCodeEmailBlocked, appErr.Code)
	}
}

func TestSESSend_TooManyRequests(t *testing.T) {
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, &sestypes.TooManyRequestsException{Message: aws.String("Rate exceeded")}
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	_, err := client.Send(context.Background(), types.SendInput{
		To:      "admin@clinic.example",
		From:    types.EmailAddress{Address: "reports@clinicpulse.io"},
		Subject: "Test",
	})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}

func TestSESSend_SendingPaused(t *testing.T) {
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, &sestypes.SendingPausedException{Message: aws.String("Account sending paused")}
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	_, err := client.Send(context.Background(), types.SendInput{
		To:      "admin@clinic.example",
		From:    types.EmailAddress{Address: "reports@clinicpulse.io"},
		Subject: "Test",
	})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}

func TestSESSend_UnknownError(t *testing.T) {
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{})

	_, err := client.Send(context.Background(), types.SendInput{
		To:      "admin@clinic.example",
		From:    types.EmailAddress{Address: "reports@clinicpulse.io"},
		Subject: "Test",
	})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}
}
