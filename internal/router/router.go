package router

import (
	"fmt"
	"strings"
)

// Result holds the outcome of routing a decrypted payload. An empty ID means
// the payload was unparseable; ImageURL is empty whenever ID is.
type Result struct {
	ID       string `json:"id,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Router derives a display image URL from a decrypted scan payload.
// Payloads have the form "<id>,<code>"; the id is the trimmed substring
// before the first comma.
type Router struct {
	imageURLTemplate string
}

// New creates a router using the given URL template. The template must
// contain a single %s verb that receives the parsed id.
func New(imageURLTemplate string) *Router {
	return &Router{imageURLTemplate: imageURLTemplate}
}

// Route parses a decrypted payload and derives the image URL. Input with no
// comma is treated leniently: the whole trimmed string becomes the id.
// Route never fails; unparseable input yields a zero Result.
func (r *Router) Route(decryptedText string) Result {
	trimmed := strings.TrimSpace(decryptedText)
	if trimmed == "" {
		return Result{}
	}

	id := trimmed
	if idx := strings.Index(trimmed, ","); idx >= 0 {
		id = strings.TrimSpace(trimmed[:idx])
	}

	if id == "" {
		return Result{}
	}

	return Result{
		ID:       id,
		ImageURL: fmt.Sprintf(r.imageURLTemplate, id),
	}
}
