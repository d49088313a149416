package sensorsamples

import (
	"net/http"

	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/ingest"
	"github.com/resq-app/resq-backend/internal/logging"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//Handler Returns the handler accepting sample batches of the user's devices.
func Handler(feeder ingest.Feeder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ctx = r.Context()
		logger := logging.FromContext(ctx).Named("sensorsamples.Handler")

		userID, ok := auth.UserOrReportError(w, r)
		if !ok {
			return
		}

		var request v1.SensorSamplesRequest

		if !httputils.DecodeJSONOrReportError(w, r, &request) {
			return
		}

		batch := ingest.FromRequest(userID, request)

		logger.Debugf("Handling SensorSamples request of %v/%v: %d samples", userID, batch.DeviceID, len(batch.Samples))

		accepted := feeder.Feed(ctx, batch)

		httputils.SendResponse(w, r, v1.SensorSamplesResponse{Success: true, Accepted: accepted})
	}
}
