package notify

import (
	"encoding/json"
	"net/http"

	"supplychain-backend/internal/config"
	"supplychain-backend/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier pushes web-push notifications to every stored subscription.
// Strictly best-effort: delivery runs off the request goroutine and failures
// are logged, never propagated to the operation that triggered them.
type Notifier struct {
	db  *gorm.DB
	log *logrus.Logger

	subject    string
	publicKey  string
	privateKey string
}

func New(cfg *config.Config, db *gorm.DB, log *logrus.Logger) *Notifier {
	return &Notifier{
		db:         db,
		log:        log,
		subject:    cfg.VAPIDSubject,
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
	}
}

func (n *Notifier) enabled() bool {
	return n.publicKey != "" && n.privateKey != ""
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
}

// OrderCreated fans a "new order" notification out to all subscribers.
func (n *Notifier) OrderCreated(title, body string) {
	if !n.enabled() {
		return
	}
	go n.send(notification{Title: title, Body: body, Icon: "/icon.png"})
}

func (n *Notifier) send(note notification) {
	payload, err := json.Marshal(note)
	if err != nil {
		n.log.WithError(err).Error("notification marshal failed")
		return
	}

	var subs []models.PushSubscription
	if err := n.db.Find(&subs).Error; err != nil {
		n.log.WithError(err).Error("could not load push subscriptions")
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}, &webpush.Options{
			Subscriber:      n.subject,
			VAPIDPublicKey:  n.publicKey,
			VAPIDPrivateKey: n.privateKey,
			TTL:             60,
		})
		if err != nil {
			n.log.WithField("endpoint", sub.Endpoint).WithError(err).Warn("push delivery failed")
			continue
		}
		resp.Body.Close()

		// The push service no longer knows this endpoint; prune it.
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := n.db.Delete(&models.PushSubscription{}, sub.ID).Error; err != nil {
				n.log.WithError(err).Warn("could not prune stale subscription")
			}
		}
	}
}
