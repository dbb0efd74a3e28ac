// Package location builds shareable links for the user's current position
// and forwards them to an emergency contact.
package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var ErrInvalidCoordinates = errors.New("location: invalid coordinates")

const messengerAppID = "291494419107600"

// Share is a position rendered for every supported channel.
type Share struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	AccuracyMeters   *float64 `json:"accuracy_meters,omitempty"`
	GoogleMapsURL    string   `json:"google_maps_url"`
	OpenStreetMapURL string   `json:"openstreetmap_url"`
	Message          string   `json:"message"`
	WhatsAppURL      string   `json:"whatsapp_url"`
	WhatsAppAppURL   string   `json:"whatsapp_app_url"`
	MessengerURL     string   `json:"messenger_url"`
	SentToContact    bool     `json:"sent_to_contact"`
}

// NewShare validates the coordinates and builds every link and the message.
func NewShare(lat, lng float64, accuracy *float64) (*Share, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("%w: %v,%v", ErrInvalidCoordinates, lat, lng)
	}
	if accuracy != nil && (*accuracy < 0 || math.IsNaN(*accuracy)) {
		return nil, fmt.Errorf("%w: negative accuracy", ErrInvalidCoordinates)
	}

	la, lo := formatCoord(lat), formatCoord(lng)
	s := &Share{
		Latitude:         lat,
		Longitude:        lng,
		AccuracyMeters:   accuracy,
		GoogleMapsURL:    "https://www.google.com/maps?q=" + la + "," + lo,
		OpenStreetMapURL: fmt.Sprintf("https://www.openstreetmap.org/?mlat=%s&mlon=%s#map=16/%s/%s", la, lo, la, lo),
	}

	var b strings.Builder
	b.WriteString("I'm sharing my location with you:\n\n")
	fmt.Fprintf(&b, "Latitude: %s\nLongitude: %s\n", la, lo)
	if accuracy != nil {
		fmt.Fprintf(&b, "Accuracy: ~%dm\n", int(math.Round(*accuracy)))
	}
	fmt.Fprintf(&b, "\nGoogle Maps: %s\nOpenStreetMap: %s\n\nShared via MeHelper", s.GoogleMapsURL, s.OpenStreetMapURL)
	s.Message = b.String()

	text := encodeComponent(s.Message)
	s.WhatsAppURL = "https://wa.me/?text=" + text
	s.WhatsAppAppURL = "whatsapp://send?text=" + text
	s.MessengerURL = "https://www.facebook.com/dialog/send?link&app_id=" + messengerAppID +
		"&redirect_uri=https://www.messenger.com&to&text=" + text

	return s, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// encodeComponent percent-encodes like a browser's encodeURIComponent,
// with spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

type Notifier interface {
	SendMessage(chatID int64, text string) error
}

// Sharer builds shares and, when a contact chat is configured, sends them.
type Sharer struct {
	notifier Notifier
	chatID   int64
	logger   *logrus.Logger
}

// NewSharer returns a Sharer. A nil notifier or zero chatID disables sending.
func NewSharer(n Notifier, chatID int64, logger *logrus.Logger) *Sharer {
	return &Sharer{notifier: n, chatID: chatID, logger: logger}
}

func (s *Sharer) Share(ctx context.Context, lat, lng float64, accuracy *float64) (*Share, error) {
	share, err := NewShare(lat, lng, accuracy)
	if err != nil {
		return nil, err
	}
	if s.notifier == nil || s.chatID == 0 {
		return share, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.notifier.SendMessage(s.chatID, share.Message); err != nil {
		s.logger.WithError(err).WithField("chat_id", s.chatID).Warn("sending location to emergency contact failed")
		return share, nil
	}
	share.SentToContact = true
	s.logger.WithField("chat_id", s.chatID).Info("location sent to emergency contact")
	return share, nil
}
