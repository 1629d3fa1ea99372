// Package transport defines the boundary to the external chat transport.
// Message delivery, media upload and the transport's wire protocol live in a
// separate bridge process; this package only models the normalized events the
// bridge delivers and the Sender contract the core uses to reply.
package transport

import "context"

// MediaKind tags the payload type of a relayed message.
type MediaKind string

const (
	MediaText     MediaKind = "text"
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
)

// Ref is the content of a prior outbound message that an inbound event
// replies to. Correlation reads this content, never the new message.
type Ref struct {
	Text    string `json:"text,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Content returns whichever body the referenced message carried; captions win
// because media messages keep their reference block there.
func (r Ref) Content() string {
	if r.Caption != "" {
		return r.Caption
	}
	return r.Text
}

// Event is one normalized inbound message from the bridge. PhotoRef and
// DocumentRef are opaque media handles the transport can re-send verbatim.
type Event struct {
	SenderID    int64  `json:"sender_id"`
	Handle      string `json:"handle,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	Text        string `json:"text,omitempty"`
	Caption     string `json:"caption,omitempty"`
	PhotoRef    string `json:"photo_ref,omitempty"`
	DocumentRef string `json:"document_ref,omitempty"`
	ReplyTo     *Ref   `json:"reply_to,omitempty"`
}

// DisplayName picks the best available label for relaying a user's message.
func (e Event) DisplayName() string {
	if e.Handle != "" {
		return e.Handle
	}
	if e.FirstName != "" {
		return e.FirstName
	}
	return "unknown"
}

// Sender delivers outbound messages through the transport bridge. A failed
// send surfaces as an error to the caller and is not retried here.
type Sender interface {
	SendMessage(ctx context.Context, recipientID int64, text string) error
	SendPhoto(ctx context.Context, recipientID int64, photoRef, caption string) error
	SendDocument(ctx context.Context, recipientID int64, documentRef, caption string) error
}
