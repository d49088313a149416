package nearestaed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/resq-app/resq-backend/internal/geo"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/utils/errors"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//Resolver Finds the AEDs closest to a point.
type Resolver interface {
	Query(ctx context.Context, lat, lon float64, k int) []geo.RankedResult
}

type request struct {
	Lat *float64 `validate:"required,min=-90,max=90"`
	Lon *float64 `validate:"required,min=-180,max=180"`
	K   int      `validate:"omitempty,min=1,max=50"`
}

//Handler Returns the handler answering `GET /aed/nearest?lat=&lon=&k=`.
func Handler(resolver Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ctx = r.Context()
		logger := logging.FromContext(ctx).Named("nearestaed.Handler")

		request, err := parseQuery(r.URL.Query())
		if err != nil {
			logger.Debugf("Could not parse query: %v", err)
			httputils.SendErrorResponse(w, r, err)
			return
		}

		logger.Debugf("Handling NearestAed request: lat=%v lon=%v k=%v", *request.Lat, *request.Lon, request.K)

		results := resolver.Query(ctx, *request.Lat, *request.Lon, request.K)
		if results == nil {
			results = []geo.RankedResult{}
		}

		httputils.SendResponse(w, r, v1.NearestAedResponse{Results: results})
	}
}

func parseQuery(query url.Values) (*request, error) {
	var request request

	parse := func(name string) (*float64, error) {
		raw := query.Get(name)
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			msg := fmt.Sprintf("Query parameter %v must be a number", name)
			return nil, &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
		}
		return &v, nil
	}

	var err error
	if request.Lat, err = parse("lat"); err != nil {
		return nil, err
	}
	if request.Lon, err = parse("lon"); err != nil {
		return nil, err
	}

	if raw := query.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k == 0 {
			msg := "Query parameter k must be an integer between 1 and 50"
			return nil, &errors.MalformedRequestError{Status: http.StatusBadRequest, Msg: msg}
		}
		request.K = k
	}

	if err := httputils.ValidateRequest(&request); err != nil {
		return nil, err
	}

	return &request, nil
}
