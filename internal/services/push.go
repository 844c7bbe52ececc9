package services

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
)

// PushNotifier sends best-effort APNs notifications to identities that
// registered a device token. Failures are logged and never retried; the
// gallery view is the authoritative recovery path.
type PushNotifier struct {
	client *apns2.Client
	topic  string
}

// NewPushNotifier creates an APNs notifier from a p12 certificate
func NewPushNotifier(p12Path, p12Password, topic string, production bool) (*PushNotifier, error) {
	cert, err := certificate.FromP12File(p12Path, p12Password)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}

	client := apns2.NewClient(cert)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &PushNotifier{client: client, topic: topic}, nil
}

// NotifyFauxtoReady tells one device its fauxto has been generated
func (n *PushNotifier) NotifyFauxtoReady(deviceToken, boothDisplayName, fauxtoID string) {
	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       n.topic,
		Payload: payload.NewPayload().
			AlertTitle("Your fauxto is ready").
			AlertBody(fmt.Sprintf("A new group photo from %s is waiting for you", boothDisplayName)).
			Custom("fauxto_id", fauxtoID),
	}

	res, err := n.client.Push(notification)
	if err != nil {
		log.Warn().Err(err).Str("fauxto_id", fauxtoID).Msg("Failed to send push notification")
		return
	}
	if !res.Sent() {
		log.Warn().Str("fauxto_id", fauxtoID).Str("reason", res.Reason).
			Msg("Push notification rejected")
	}
}
