package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

// Sink names, also used as SetEnabled keys and metric labels.
const (
	SinkBanner       = "banner"
	SinkNotification = "notification"
	SinkSound        = "sound"
)

// ErrAudioBlocked is returned by a SoundPlayer when the platform refuses
// playback until the user has interacted with the page.
var ErrAudioBlocked = errors.New("audio blocked until user interaction")

// Broadcaster renders an alert banner on every admin screen.
type Broadcaster interface {
	Broadcast(ctx context.Context, a domain.Alert) error
}

// Permission mirrors the desktop notification consent states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notification is a desktop notification.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// NotificationPlatform shows desktop notifications.
type NotificationPlatform interface {
	Permission() Permission
	RequestPermission(ctx context.Context) error
	Notify(ctx context.Context, n Notification) error
}

// SoundPlayer plays a named audio cue.
type SoundPlayer interface {
	Play(ctx context.Context, sound string) error
}

// BannerSink pushes the alert to the on-screen banner.
type BannerSink struct {
	out Broadcaster
}

func NewBannerSink(out Broadcaster) *BannerSink {
	return &BannerSink{out: out}
}

func (*BannerSink) Name() string { return SinkBanner }

func (s *BannerSink) Deliver(ctx context.Context, a domain.Alert) error {
	return s.out.Broadcast(ctx, a)
}

// NotificationSink shows a desktop notification when permission was granted.
// Permission is requested until one request reaches an admin, then never
// again; until granted, alerts are skipped.
type NotificationSink struct {
	platform NotificationPlatform

	mu        sync.Mutex
	requested bool
}

func NewNotificationSink(platform NotificationPlatform) *NotificationSink {
	return &NotificationSink{platform: platform}
}

func (*NotificationSink) Name() string { return SinkNotification }

func (s *NotificationSink) Deliver(ctx context.Context, a domain.Alert) error {
	switch s.platform.Permission() {
	case PermissionGranted:
		return s.platform.Notify(ctx, NotificationFor(a))
	case PermissionDenied:
		return fmt.Errorf("%w: notification permission denied", ErrSkipped)
	default:
		if err := s.requestOnce(ctx); err != nil {
			return fmt.Errorf("%w: request notification permission: %w", ErrSkipped, err)
		}
		return fmt.Errorf("%w: notification permission not granted", ErrSkipped)
	}
}

func (s *NotificationSink) requestOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requested {
		return nil
	}
	if err := s.platform.RequestPermission(ctx); err != nil {
		return err
	}
	s.requested = true
	return nil
}

// NotificationFor renders the desktop notification for an alert.
func NotificationFor(a domain.Alert) Notification {
	body := a.Report.Excerpt
	if a.Report.Location != "" {
		body += " (" + a.Report.Location + ")"
	}
	return Notification{
		Title: fmt.Sprintf("New %s report: %s", a.Priority, titleCase(a.Report.ReportType)),
		Body:  body,
		Tag:   "report-" + a.Report.ID,
	}
}

// prioritySounds maps alert priority to the audio cue.
var prioritySounds = map[domain.Priority]string{
	domain.PriorityEmergency: "siren",
	domain.PriorityHigh:      "alert",
	domain.PriorityNormal:    "chime",
}

// SoundFor returns the audio cue for a priority.
func SoundFor(p domain.Priority) string {
	if s, ok := prioritySounds[p]; ok {
		return s
	}
	return prioritySounds[domain.PriorityNormal]
}

// SoundSink plays the priority's audio cue.
type SoundSink struct {
	player SoundPlayer
}

func NewSoundSink(player SoundPlayer) *SoundSink {
	return &SoundSink{player: player}
}

func (*SoundSink) Name() string { return SinkSound }

func (s *SoundSink) Deliver(ctx context.Context, a domain.Alert) error {
	return s.player.Play(ctx, SoundFor(a.Priority))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
