package raiseemergency

import (
	"context"
	"net/http"

	"github.com/resq-app/resq-backend/internal/alerts"
	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/logging"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//Raiser Raises emergencies.
type Raiser interface {
	Raise(ctx context.Context, e alerts.Emergency) (*alerts.Result, error)
}

//Handler Returns the handler of manually raised emergencies.
func Handler(raiser Raiser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ctx = r.Context()
		logger := logging.FromContext(ctx).Named("raiseemergency.Handler")

		userID, ok := auth.UserOrReportError(w, r)
		if !ok {
			return
		}

		var request v1.EmergencyRequest

		if !httputils.DecodeJSONOrReportError(w, r, &request) {
			return
		}

		logger.Debugf("Handling RaiseEmergency request of %v: %+v", userID, request)

		result, err := raiser.Raise(ctx, alerts.Emergency{
			UserID:    userID,
			Kind:      v1.KindManual,
			Title:     request.Title,
			Body:      request.Body,
			Latitude:  request.Latitude,
			Longitude: request.Longitude,
		})
		if err != nil {
			logger.Warnf("Cannot handle request due to unknown error: %+v", err.Error())
			httputils.SendErrorResponse(w, r, err)
			return
		}

		response := v1.EmergencyResponse{
			Success:     true,
			EmergencyID: result.EmergencyID,
			Duplicate:   result.Duplicate,
		}
		if result.Report != nil {
			response.Delivered = result.Report.Delivered
			response.Failed = result.Report.Failed
		}

		httputils.SendResponse(w, r, response)
	}
}
