package alerts

import (
	"context"
	"fmt"

	"github.com/resq-app/resq-backend/internal/ingest"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/pubsub"
	"github.com/resq-app/resq-backend/internal/utils"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//FallRaiser Hands a detected fall over for alerting.
type FallRaiser interface {
	RaiseFall(ctx context.Context, msg v1.FallDetectedMessage) error
}

//DirectRaiser Raises falls in-process.
type DirectRaiser struct {
	Service *Service
}

//RaiseFall Raises the fall right away.
func (r DirectRaiser) RaiseFall(ctx context.Context, msg v1.FallDetectedMessage) error {
	_, err := r.Service.RaiseFallMessage(ctx, msg)
	return err
}

//PubSubRaiser Publishes falls to the fall topic, the aftermath consumer raises them.
type PubSubRaiser struct {
	Publisher pubsub.EventPublisher
	Topic     string
}

//RaiseFall Publishes the fall.
func (r PubSubRaiser) RaiseFall(ctx context.Context, msg v1.FallDetectedMessage) error {
	return r.Publisher.Publish(ctx, r.Topic, msg)
}

//RaiseFallMessage Raises the alert of a detected fall.
func (s *Service) RaiseFallMessage(ctx context.Context, msg v1.FallDetectedMessage) (*Result, error) {
	return s.Raise(ctx, Emergency{
		EmergencyID: msg.EmergencyID,
		UserID:      msg.UserID,
		Kind:        v1.KindFall,
		MagnitudeG:  msg.MagnitudeG,
		Latitude:    msg.Latitude,
		Longitude:   msg.Longitude,
	})
}

//Aftermath Handler of the fall topic.
func (s *Service) Aftermath(ctx context.Context, m pubsub.Message) error {
	logger := logging.FromContext(ctx).Named("alerts.Aftermath")

	var msg v1.FallDetectedMessage
	if err := pubsub.DecodeJSONEvent(m, &msg); err != nil {
		// redelivery cannot fix a broken payload
		logger.Warnf("Dropping malformed fall event: %v", err)
		return nil
	}
	if msg.UserID == "" {
		logger.Warnf("Dropping fall event without user: %+v", msg)
		return nil
	}

	logger.Debugf("Doing fall aftermath for emergency '%s'!", msg.EmergencyID)

	_, err := s.RaiseFallMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("Error while raising fall %v: %v", msg.EmergencyID, err)
	}

	return nil
}

//OnFall Adapts the raiser to the ingest fall handler. Every fall gets a fresh emergency id.
func OnFall(raiser FallRaiser) ingest.FallHandler {
	return func(ctx context.Context, fall ingest.Fall) {
		logger := logging.FromContext(ctx).Named("alerts.OnFall")

		msg := v1.FallDetectedMessage{
			EmergencyID: utils.GenerateEmergencyID(),
			UserID:      fall.UserID,
			DeviceID:    fall.DeviceID,
			MagnitudeG:  fall.Event.MagnitudeG,
			TimestampMs: fall.Event.TimestampMs,
		}
		if fall.Location != nil {
			lat, lon := fall.Location.Latitude, fall.Location.Longitude
			msg.Latitude, msg.Longitude = &lat, &lon
		}

		if err := raiser.RaiseFall(ctx, msg); err != nil {
			logger.Errorf("Could not raise fall of %v/%v: %v", fall.UserID, fall.DeviceID, err)
		}
	}
}
