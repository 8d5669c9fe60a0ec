package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/nova/internal/htmltext"
)

const fetchConcurrency = 4

// Message is an inbox entry summary.
type Message struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

// Outgoing is a message to send or save as a draft.
type Outgoing struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks that the recipient parses as an address.
func (o Outgoing) Validate() error {
	if strings.TrimSpace(o.To) == "" {
		return errors.New("recipient is required")
	}
	if _, err := mail.ParseAddressList(o.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", o.To, err)
	}
	return nil
}

// Mail reads and sends Gmail messages for the authorized user.
type Mail struct {
	httpClient *http.Client
	baseURL    string
}

func (m *Mail) endpoint(path string) string {
	return m.baseURL + "/gmail/v1/users/me" + path
}

// Recent returns the newest n inbox messages, newest first.
func (m *Mail) Recent(ctx context.Context, n int) ([]Message, error) {
	q := url.Values{}
	q.Set("maxResults", fmt.Sprint(n))
	q.Set("labelIds", "INBOX")

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := doJSON(ctx, m.httpClient, http.MethodGet, m.endpoint("/messages?"+q.Encode()), nil, &list); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	out := make([]Message, len(list.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, ref := range list.Messages {
		g.Go(func() error {
			msg, err := m.get(gctx, ref.ID)
			if err != nil {
				return err
			}
			out[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mail) get(ctx context.Context, id string) (Message, error) {
	q := url.Values{}
	q.Set("format", "metadata")
	q.Add("metadataHeaders", "From")
	q.Add("metadataHeaders", "Subject")

	var raw struct {
		ID      string `json:"id"`
		Snippet string `json:"snippet"`
		Payload struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
		} `json:"payload"`
	}
	if err := doJSON(ctx, m.httpClient, http.MethodGet, m.endpoint("/messages/"+url.PathEscape(id)+"?"+q.Encode()), nil, &raw); err != nil {
		return Message{}, fmt.Errorf("reading message %s: %w", id, err)
	}

	msg := Message{ID: raw.ID, Snippet: htmltext.Text(raw.Snippet)}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "subject":
			msg.Subject = h.Value
		}
	}
	return msg, nil
}

// Send delivers o and returns the new message id.
func (m *Mail) Send(ctx context.Context, o Outgoing) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	in := map[string]string{"raw": encodeRaw(o)}
	if err := doJSON(ctx, m.httpClient, http.MethodPost, m.endpoint("/messages/send"), in, &resp); err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return resp.ID, nil
}

// Draft saves o as a draft and returns the draft id.
func (m *Mail) Draft(ctx context.Context, o Outgoing) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	in := map[string]any{"message": map[string]string{"raw": encodeRaw(o)}}
	if err := doJSON(ctx, m.httpClient, http.MethodPost, m.endpoint("/drafts"), in, &resp); err != nil {
		return "", fmt.Errorf("creating draft: %w", err)
	}
	return resp.ID, nil
}

// encodeRaw renders o as an RFC 2822 message in base64url, the form the
// Gmail API expects in "raw".
func encodeRaw(o Outgoing) string {
	var b strings.Builder
	b.WriteString("To: " + o.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", o.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(o.Body, "\n", "\r\n"))
	return base64.RawURLEncoding.EncodeToString([]byte(b.String()))
}
