package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestAddress(t *testing.T) {
	cases := map[string]string{
		"51999888777":           "whatsapp:+51999888777",
		"+51999888777":          "whatsapp:+51999888777",
		"whatsapp:+51999888777": "whatsapp:+51999888777",
	}
	for in, want := range cases {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientSendMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, "+14155238886")

	if err := c.SendMessage(context.Background(), "51999888777", "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 request, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "whatsapp:+51999888777" || *p.From != "whatsapp:+14155238886" || *p.Body != "Hola" {
		t.Errorf("unexpected params: to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestClientSendMediaAndLocation(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, "whatsapp:+14155238886")
	ctx := context.Background()

	if err := c.SendMedia(ctx, "51999888777", "Menú", "https://example.com/menu.jpg"); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if err := c.SendLocation(ctx, "51999888777", -12.5, -77.25, "Oficina"); err != nil {
		t.Fatalf("SendLocation: %v", err)
	}
	media := api.params[0].MediaUrl
	if media == nil || len(*media) != 1 || (*media)[0] != "https://example.com/menu.jpg" {
		t.Errorf("unexpected media urls: %v", media)
	}
	geo := api.params[1].PersistentAction
	if geo == nil || (*geo)[0] != "geo:-12.500000,-77.250000|Oficina" {
		t.Errorf("unexpected persistent action: %v", geo)
	}
}

func TestClientSendError(t *testing.T) {
	boom := errors.New("boom")
	c := newClient(&fakeAPI{err: boom}, "+1")
	if err := c.SendMessage(context.Background(), "51", "x"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Fatal("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestMockClient(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()
	_ = m.SendMessage(ctx, "51", "Hola")
	_ = m.SendLocation(ctx, "51", 1, 2, "X")
	if len(m.SentMessages) != 2 || m.SentMessages[1].Geo != "geo:1.000000,2.000000|X" {
		t.Fatalf("unexpected calls: %+v", m.SentMessages)
	}
}
