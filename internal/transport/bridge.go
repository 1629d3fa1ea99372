package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BridgeSender posts outbound messages to the transport bridge over HTTP.
type BridgeSender struct {
	baseURL string
	client  *http.Client
}

func NewBridgeSender(baseURL string) *BridgeSender {
	return &BridgeSender{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sendRequest struct {
	RecipientID int64     `json:"recipient_id"`
	Kind        MediaKind `json:"kind"`
	Text        string    `json:"text,omitempty"`
	MediaRef    string    `json:"media_ref,omitempty"`
	Caption     string    `json:"caption,omitempty"`
}

func (s *BridgeSender) SendMessage(ctx context.Context, recipientID int64, text string) error {
	return s.post(ctx, sendRequest{RecipientID: recipientID, Kind: MediaText, Text: text})
}

func (s *BridgeSender) SendPhoto(ctx context.Context, recipientID int64, photoRef, caption string) error {
	return s.post(ctx, sendRequest{RecipientID: recipientID, Kind: MediaPhoto, MediaRef: photoRef, Caption: caption})
}

func (s *BridgeSender) SendDocument(ctx context.Context, recipientID int64, documentRef, caption string) error {
	return s.post(ctx, sendRequest{RecipientID: recipientID, Kind: MediaDocument, MediaRef: documentRef, Caption: caption})
}

func (s *BridgeSender) post(ctx context.Context, req sendRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("bridge send to %d: %w", req.RecipientID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge send to %d: status %d", req.RecipientID, resp.StatusCode)
	}
	return nil
}
