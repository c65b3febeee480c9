package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestCanonicalizeRecipient(t *testing.T) {
	got, err := CanonicalizeRecipient("+51 999-888-777")
	require.NoError(t, err)
	assert.Equal(t, "51999888777", got)

	_, err = CanonicalizeRecipient("whatsapp:+12")
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	_, err = CanonicalizeRecipient("")
	assert.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestSendDispatchesByKind(t *testing.T) {
	ctx := context.Background()
	m := NewMockSender()
	msgs := []models.Outbound{
		models.Text("hola"),
		models.Document("https://x/b.pdf", "Brochure", "b.pdf"),
		models.Location(-12, -77, "Oficina", "Lima"),
		models.Image("https://x/m.jpg", "Menú"),
	}
	require.NoError(t, SendAll(ctx, m, "51999888777", msgs, nil))
	assert.Equal(t, msgs, m.SentTo("51999888777"))

	err := Send(ctx, m, "51999888777", models.Outbound{Kind: "sticker"})
	assert.ErrorIs(t, err, models.ErrUnknownKind)
}

type flakySender struct {
	*MockSender
	failOn int
	calls  int
}

func (f *flakySender) SendText(ctx context.Context, to, body string) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("network down")
	}
	return f.MockSender.SendText(ctx, to, body)
}

func TestSendAllContinuesAfterFailure(t *testing.T) {
	f := &flakySender{MockSender: NewMockSender(), failOn: 1}
	var observed []string
	err := SendAll(context.Background(), f, "51999888777",
		[]models.Outbound{models.Text("uno"), models.Text("dos")},
		func(kind string, err error) { observed = append(observed, kind) })

	require.Error(t, err)
	assert.Equal(t, []models.Outbound{models.Text("dos")}, f.SentTo("51999888777"))
	assert.Equal(t, []string{"text", "text"}, observed)
}

func TestCloudAPISender(t *testing.T) {
	var (
		paths    []string
		payloads []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		paths = append(paths, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		payloads = append(payloads, body)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"messages":[{"id":"wamid.1"}]}`)
	}))
	defer srv.Close()

	s := NewCloudAPISender("tok", "12345", WithGraphBaseURL(srv.URL))
	ctx := context.Background()
	require.NoError(t, s.SendText(ctx, "51999888777", "hola"))
	require.NoError(t, s.SendDocument(ctx, "51999888777", "https://x/b.pdf", "Brochure", "b.pdf"))
	require.NoError(t, s.SendLocation(ctx, "51999888777", -12.5, -77.5, "Oficina", "Lima"))
	require.NoError(t, s.SendImage(ctx, "51999888777", "https://x/m.jpg", "Menú"))

	require.Len(t, payloads, 4)
	assert.Equal(t, "/v22.0/12345/messages", paths[0])
	assert.Equal(t, "whatsapp", payloads[0]["messaging_product"])
	assert.Equal(t, "hola", payloads[0]["text"].(map[string]any)["body"])
	assert.Equal(t, "b.pdf", payloads[1]["document"].(map[string]any)["filename"])
	assert.Equal(t, -12.5, payloads[2]["location"].(map[string]any)["latitude"])
	assert.Equal(t, "image", payloads[3]["type"])
}

func TestCloudAPISenderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewCloudAPISender("tok", "1", WithGraphBaseURL(srv.URL)).SendText(context.Background(), "51999888777", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	// Unconfigured senders skip quietly.
	assert.NoError(t, NewCloudAPISender("", "", WithGraphBaseURL(srv.URL)).SendText(context.Background(), "51999888777", "x"))
}

func TestParseCloudWebhook(t *testing.T) {
	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{
		"messages":[{"from":"51999888777","id":"wamid.A","timestamp":"1700000000","type":"text","text":{"body":" Hola "}}]}}]}]}`
	msgs, err := ParseCloudWebhook([]byte(body), "agency")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.Inbound{
		Vertical:  "agency",
		Identity:  "51999888777",
		Text:      " Hola ",
		MessageID: "wamid.A",
		Received:  time.Unix(1700000000, 0),
	}, msgs[0])

	interactive := `{"entry":[{"changes":[{"value":{"messages":[{"from":"51","id":"b","type":"interactive",
		"interactive":{"type":"button_reply","button_reply":{"id":"1","title":"Catálogo"}}}]}}]}]}`
	msgs, err = ParseCloudWebhook([]byte(interactive), "generic")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Catálogo", msgs[0].Text)

	statuses := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.A","status":"read"}]}}]}]}`
	msgs, err = ParseCloudWebhook([]byte(statuses), "generic")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = ParseCloudWebhook([]byte(`{not json`), "generic")
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestTwilioServiceSendAndStop(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock, "clinic")
	ctx := context.Background()

	require.NoError(t, svc.SendText(ctx, "+51 999 888 777", "Hola"))
	require.NoError(t, svc.SendImage(ctx, "51999888777", "https://x/m.jpg", "Menú"))
	require.NoError(t, svc.SendLocation(ctx, "51999888777", 1, 2, "Clínica", "Av. Siempre Viva"))
	require.Len(t, mock.SentMessages, 3)
	assert.Equal(t, "51999888777", mock.SentMessages[0].To)
	assert.Equal(t, "https://x/m.jpg", mock.SentMessages[1].MediaURL)
	assert.Equal(t, "geo:1.000000,2.000000|Clínica Av. Siempre Viva", mock.SentMessages[2].Geo)

	assert.ErrorIs(t, svc.SendText(ctx, "12", "x"), ErrInvalidRecipient)

	require.NoError(t, svc.Stop())
	require.NoError(t, svc.Stop())
	assert.ErrorIs(t, svc.SendText(ctx, "51999888777", "x"), ErrServiceStopped)
	_, ok := <-svc.Inbound()
	assert.False(t, ok)
}

func TestTwilioWebhookHandler(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient(), "courier")
	form := url.Values{"From": {"whatsapp:+51999888777"}, "Body": {"ABC123"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.TwilioWebhookHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response>")
	select {
	case msg := <-svc.Inbound():
		assert.Equal(t, "courier", msg.Vertical)
		assert.Equal(t, "51999888777", msg.Identity)
		assert.Equal(t, "ABC123", msg.Text)
		assert.Equal(t, "SM1", msg.MessageID)
	default:
		t.Fatal("expected an inbound message")
	}

	bad := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader("Body=hi"))
	bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func whatsmeowMessage(from, id string, fromMe bool, msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Sender:   types.NewJID(from, whatsapp.JIDSuffix),
				IsFromMe: fromMe,
			},
			ID:        types.MessageID(id),
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: msg,
	}
}

func TestWhatsAppServiceInbound(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient(), "restaurant")
	require.NoError(t, svc.Start(context.Background()))

	svc.handleIncomingMessage(whatsmeowMessage("51999888777", "M1", false, &waE2E.Message{Conversation: proto.String("1")}))
	svc.handleIncomingMessage(whatsmeowMessage("51999888777", "M2", true, &waE2E.Message{Conversation: proto.String("echo")}))
	svc.handleIncomingMessage(whatsmeowMessage("51999888777", "M3", false, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("menu")},
	}))
	svc.handleIncomingMessage(whatsmeowMessage("51999888777", "M4", false, &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{},
	}))

	first := <-svc.Inbound()
	second := <-svc.Inbound()
	assert.Equal(t, "1", first.Text)
	assert.Equal(t, "M1", first.MessageID)
	assert.Equal(t, "restaurant", first.Vertical)
	assert.Equal(t, "menu", second.Text)
	assert.Len(t, svc.Inbound(), 0)

	require.NoError(t, svc.Stop())
	// Events after Stop are dropped instead of panicking on the closed channel.
	svc.handleIncomingMessage(whatsmeowMessage("51999888777", "M5", false, &waE2E.Message{Conversation: proto.String("x")}))
}

func TestWhatsAppServiceSend(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock, "generic")
	ctx := context.Background()

	require.NoError(t, svc.SendText(ctx, "+51999888777", "hola"))
	require.NoError(t, svc.SendDocument(ctx, "51999888777", "https://x/b.pdf", "", "brochure.pdf"))
	require.NoError(t, svc.SendLocation(ctx, "51999888777", -12, -77, "Oficina", "Lima"))

	require.Len(t, mock.Sent, 3)
	assert.Equal(t, "51999888777", mock.Sent[0].To)
	assert.Equal(t, "link", mock.Sent[1].Kind)
	assert.Equal(t, "brochure.pdf", mock.Sent[1].Body)
	assert.Equal(t, "location", mock.Sent[2].Kind)
}
