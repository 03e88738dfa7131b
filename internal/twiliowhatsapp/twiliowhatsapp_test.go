package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "+15551234567", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}

	if sent[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", sent[0].Body)
	}
}

func TestClient_SendMessage_Channels(t *testing.T) {
	tests := []struct {
		name   string
		from   string
		wantTo string
	}{
		{"whatsapp", "whatsapp:+14155238886", "whatsapp:+15551234567"},
		{"sms", "+14155238886", "+15551234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCreator{}
			c := &Client{api: fc, from: tt.from}
			if err := c.SendMessage(context.Background(), "+15551234567", "hi"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fc.params.To == nil || *fc.params.To != tt.wantTo {
				t.Errorf("expected To %q, got %v", tt.wantTo, fc.params.To)
			}
			if fc.params.From == nil || *fc.params.From != tt.from {
				t.Errorf("expected From %q, got %v", tt.from, fc.params.From)
			}
		})
	}
}

func TestClient_SendMessage_Error(t *testing.T) {
	fc := &fakeCreator{err: errors.New("401 unauthorized")}
	c := &Client{api: fc, from: "+1"}
	err := c.SendMessage(context.Background(), "+15551234567", "hi")
	if err == nil || !errors.Is(err, fc.err) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFrom("whatsapp:+1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.IsWhatsApp() {
		t.Error("expected WhatsApp channel")
	}
}
