package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// ErrMalformedPayload is returned when a webhook body is not a valid envelope.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// cloudEnvelope is the subset of the Cloud API webhook notification we read.
type cloudEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []cloudInbound `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type cloudInbound struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
	Button struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive struct {
		ButtonReply struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

func (m cloudInbound) text() string {
	switch {
	case m.Text.Body != "":
		return m.Text.Body
	case m.Button.Text != "":
		return m.Button.Text
	case m.Interactive.ButtonReply.Title != "":
		return m.Interactive.ButtonReply.Title
	default:
		return m.Interactive.ListReply.Title
	}
}

func (m cloudInbound) received() time.Time {
	if sec, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0)
	}
	return time.Now()
}

// ParseCloudWebhook extracts the user messages from a Cloud API notification.
// Status-only notifications yield no messages and no error. Non-text messages
// are returned with empty Text.
func ParseCloudWebhook(body []byte, vertical string) ([]models.Inbound, error) {
	var env cloudEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var out []models.Inbound
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.From == "" {
					continue
				}
				out = append(out, models.Inbound{
					Vertical:  vertical,
					Identity:  m.From,
					Text:      m.text(),
					MessageID: m.ID,
					Received:  m.received(),
				})
			}
		}
	}
	return out, nil
}
