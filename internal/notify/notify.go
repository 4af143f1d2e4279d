// Package notify delivers web-push notifications for events that happen
// while the session has no live socket: messages confirmed delivered and
// incoming calls. Without VAPID keys the notifier is a no-op.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"parley/internal/models"
)

// Subscription is a browser push subscription bound to a user.
type Subscription struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// SubscriptionStore persists push subscriptions.
type SubscriptionStore interface {
	SaveSubscription(sub Subscription) error
	ListSubscriptions(userID string) ([]Subscription, error)
	DeleteSubscription(endpoint string) error
}

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the contact address included in the VAPID claims.
	Subscriber string
}

type Notifier struct {
	cfg   Config
	store SubscriptionStore
}

func New(cfg Config, store SubscriptionStore) *Notifier {
	return &Notifier{cfg: cfg, store: store}
}

// Enabled reports whether push delivery is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.VAPIDPublicKey != "" && n.cfg.VAPIDPrivateKey != ""
}

func (n *Notifier) Subscribe(sub Subscription) error {
	if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
		return fmt.Errorf("incomplete push subscription")
	}
	return n.store.SaveSubscription(sub)
}

type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// MessageDelivered notifies the user's subscribed clients about a message
// that was confirmed delivered while no socket was attached.
func (n *Notifier) MessageDelivered(userID string, msg models.Message) {
	body := msg.Content
	if msg.Type != models.MessageTypeText {
		body = string(msg.Type)
	}
	n.push(userID, payload{
		Title: "New message",
		Body:  body,
		Tag:   "message-" + msg.ChatID,
	})
}

// IncomingCall notifies the user's subscribed clients about a ringing call.
func (n *Notifier) IncomingCall(userID string, caller models.User, callType models.CallType) {
	n.push(userID, payload{
		Title: fmt.Sprintf("Incoming %s call", callType),
		Body:  caller.Name + " is calling you",
		Tag:   "call",
	})
}

func (n *Notifier) push(userID string, p payload) {
	if !n.Enabled() {
		return
	}

	subs, err := n.store.ListSubscriptions(userID)
	if err != nil {
		slog.Error("failed to list push subscriptions", "user_id", userID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("failed to marshal push payload", "error", err)
		return
	}

	// Network delivery must not block timer callbacks.
	go func() {
		for _, sub := range subs {
			n.send(sub, data)
		}
	}()
}

func (n *Notifier) send(sub Subscription, data []byte) {
	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		TTL:             60,
		Subscriber:      n.cfg.Subscriber,
		VAPIDPublicKey:  n.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: n.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		slog.Warn("push delivery failed", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	// Expired or revoked subscriptions are pruned.
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		if err := n.store.DeleteSubscription(sub.Endpoint); err != nil {
			slog.Warn("failed to prune push subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}
