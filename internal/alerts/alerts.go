// Package alerts composes emergency alerts and hands them to the dispatcher.
package alerts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/resq-app/resq-backend/internal/dispatch"
	"github.com/resq-app/resq-backend/internal/firebase/structs"
	"github.com/resq-app/resq-backend/internal/geo"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/redis"
	"github.com/resq-app/resq-backend/internal/utils"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//FallTitle Title of fall alerts.
const FallTitle = "Fall detected"

//Dispatcher Delivers a payload to all enabled subscriptions of a user.
type Dispatcher interface {
	Publish(ctx context.Context, userID string, payload v1.AlertPayload) (*dispatch.DeliveryReport, error)
}

//Nearest Finds the AEDs closest to a point.
type Nearest interface {
	Query(ctx context.Context, lat, lon float64, k int) []geo.RankedResult
}

//Counters Counts raised alerts.
type Counters interface {
	Record(ctx context.Context, delivered, failed int) error
}

//EmergencyLog Persists raised emergencies.
type EmergencyLog interface {
	Save(ctx context.Context, emergency structs.Emergency) error
}

//Pruner Removes subscriptions the push service reported as gone.
type Pruner interface {
	Unsubscribe(ctx context.Context, userID, endpoint string) (bool, error)
}

//Config Presentation of the composed alerts.
type Config struct {
	Icon  string
	Badge string
}

//Deps Collaborators of the service. Only Dispatcher is required.
type Deps struct {
	Dispatcher Dispatcher
	Nearest    Nearest
	Counters   Counters
	Log        EmergencyLog
	Dedupe     redis.Deduper
	Prune      Pruner
}

//Service Raises emergencies.
type Service struct {
	deps   Deps
	config Config
}

//NewService Creates the service; missing optional collaborators are skipped.
func NewService(deps Deps, config Config) *Service {
	if deps.Dedupe == nil {
		deps.Dedupe = redis.Noop{}
	}
	if config.Icon == "" {
		config.Icon = v1.DefaultAlertIcon
	}
	if config.Badge == "" {
		config.Badge = v1.DefaultAlertIcon
	}
	return &Service{deps: deps, config: config}
}

//Emergency One emergency to raise.
type Emergency struct {
	EmergencyID string
	UserID      string
	Kind        string
	Title       string
	Body        string
	MagnitudeG  float64
	Latitude    *float64
	Longitude   *float64
}

//Result Outcome of Raise.
type Result struct {
	EmergencyID string
	Report      *dispatch.DeliveryReport
	Duplicate   bool
}

//Raise Delivers the emergency to the user's subscriptions. An emergency id already raised is reported as
// duplicate and not delivered again.
func (s *Service) Raise(ctx context.Context, e Emergency) (*Result, error) {
	logger := logging.FromContext(ctx).Named("alerts.Raise")

	if e.EmergencyID == "" {
		e.EmergencyID = utils.GenerateEmergencyID()
	}
	if e.Kind == "" {
		e.Kind = v1.KindManual
	}

	first, err := s.deps.Dedupe.First(ctx, e.EmergencyID)
	if err != nil {
		logger.Warnf("Dedupe of emergency %v failed, raising anyway: %v", e.EmergencyID, err)
		first = true
	}
	if !first {
		logger.Debugf("Emergency %v already raised", e.EmergencyID)
		return &Result{EmergencyID: e.EmergencyID, Duplicate: true}, nil
	}

	var nearest *geo.RankedResult
	if s.deps.Nearest != nil && e.Latitude != nil && e.Longitude != nil {
		if results := s.deps.Nearest.Query(ctx, *e.Latitude, *e.Longitude, 1); len(results) > 0 {
			nearest = &results[0]
		}
	}

	payload := BuildPayload(e, nearest, s.config)

	report, err := s.deps.Dispatcher.Publish(ctx, e.UserID, payload)
	if err != nil {
		if ferr := s.deps.Dedupe.Forget(ctx, e.EmergencyID); ferr != nil {
			logger.Warnf("Could not forget emergency %v: %v", e.EmergencyID, ferr)
		}
		return nil, err
	}

	if s.deps.Prune != nil {
		s.pruneGone(ctx, report)
	}

	if s.deps.Counters != nil {
		if err := s.deps.Counters.Record(ctx, report.Delivered, report.Failed); err != nil {
			logger.Warnf("Could not update alert counters: %v", err)
		}
	}

	if s.deps.Log != nil {
		record := structs.Emergency{
			EmergencyID: e.EmergencyID,
			UserID:      e.UserID,
			Kind:        e.Kind,
			MagnitudeG:  e.MagnitudeG,
			Latitude:    e.Latitude,
			Longitude:   e.Longitude,
			Delivered:   report.Delivered,
			Failed:      report.Failed,
			CreatedAt:   utils.GetTimeNow().Unix(),
		}
		if nearest != nil && nearest.ID != nil {
			record.NearestAedID = *nearest.ID
		}
		if err := s.deps.Log.Save(ctx, record); err != nil {
			logger.Warnf("Could not save emergency %v: %v", e.EmergencyID, err)
		}
	}

	return &Result{EmergencyID: e.EmergencyID, Report: report}, nil
}

func (s *Service) pruneGone(ctx context.Context, report *dispatch.DeliveryReport) {
	logger := logging.FromContext(ctx).Named("alerts.pruneGone")

	for _, o := range report.Outcomes {
		if !o.Gone {
			continue
		}
		if _, err := s.deps.Prune.Unsubscribe(ctx, report.UserID, o.Endpoint); err != nil {
			logger.Warnf("Could not remove gone subscription %v: %v", o.Endpoint, err)
			continue
		}
		logger.Debugf("Removed gone subscription %v", o.Endpoint)
	}
}

//BuildPayload Composes the push payload of an emergency.
func BuildPayload(e Emergency, nearest *geo.RankedResult, config Config) v1.AlertPayload {
	requireInteraction := true

	payload := v1.AlertPayload{
		Title:              e.Title,
		Body:               e.Body,
		Icon:               config.Icon,
		Badge:              config.Badge,
		RequireInteraction: &requireInteraction,
		Data: map[string]string{
			v1.DataEmergencyID: e.EmergencyID,
			v1.DataKind:        e.Kind,
		},
	}

	if e.Kind == v1.KindFall {
		payload.Data[v1.DataMagnitudeG] = strconv.FormatFloat(e.MagnitudeG, 'f', 2, 64)
		if payload.Title == "" {
			payload.Title = FallTitle
		}
		if payload.Body == "" {
			payload.Body = fmt.Sprintf("A fall with an impact of %.1f g was detected.", e.MagnitudeG)
		}
	}
	if payload.Title == "" {
		payload.Title = v1.DefaultAlertTitle
	}
	if payload.Body == "" {
		payload.Body = v1.DefaultAlertBody
	}

	if e.Latitude != nil && e.Longitude != nil {
		payload.Data[v1.DataLatitude] = strconv.FormatFloat(*e.Latitude, 'f', -1, 64)
		payload.Data[v1.DataLongitude] = strconv.FormatFloat(*e.Longitude, 'f', -1, 64)
	}

	if nearest != nil {
		if nearest.ID != nil {
			payload.Data[v1.DataAedID] = *nearest.ID
		}
		payload.Data[v1.DataAedDistanceM] = strconv.Itoa(int(nearest.DistanceMeters + 0.5))
		payload.Data[v1.DataAedDesc] = nearest.Description
		payload.Data[v1.DataAedFloorLevel] = nearest.FloorLevel
		payload.Body = fmt.Sprintf("%s Nearest AED: %s (floor %s), %d m away.",
			payload.Body, nearest.Description, nearest.FloorLevel, int(nearest.DistanceMeters+0.5))
	}

	return payload
}
