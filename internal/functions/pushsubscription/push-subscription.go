package pushsubscription

import (
	"net/http"

	"github.com/resq-app/resq-backend/internal/auth"
	"github.com/resq-app/resq-backend/internal/logging"
	"github.com/resq-app/resq-backend/internal/subscriptions"
	"github.com/resq-app/resq-backend/internal/utils/errors"
	httputils "github.com/resq-app/resq-backend/internal/utils/http"
	v1 "github.com/resq-app/resq-backend/pkg/api/v1"
)

//Handlers Push subscription endpoints of the authenticated user.
type Handlers struct {
	store     subscriptions.Store
	publicKey string
}

//New Creates the handlers. Empty publicKey means push is not configured.
func New(store subscriptions.Store, publicKey string) *Handlers {
	return &Handlers{store: store, publicKey: publicKey}
}

//VapidKey Handler
func (h *Handlers) VapidKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserOrReportError(w, r); !ok {
		return
	}

	if h.publicKey == "" {
		httputils.SendErrorResponse(w, r, &errors.UnavailableError{Msg: "Push notifications are not configured"})
		return
	}

	httputils.SendResponse(w, r, v1.VapidKeyResponse{PublicKey: h.publicKey})
}

//Subscribe Handler
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("pushsubscription.Subscribe")

	userID, ok := auth.UserOrReportError(w, r)
	if !ok {
		return
	}

	var request v1.PushSubscribeRequest

	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	logger.Debugf("Handling Subscribe request of %v: %v", userID, request.Endpoint)

	keys := subscriptions.Keys{P256dh: request.Keys.P256dh, Auth: request.Keys.Auth}

	if _, err := h.store.Subscribe(ctx, userID, request.Endpoint, keys); err != nil {
		logger.Warnf("Cannot handle request due to unknown error: %+v", err.Error())
		httputils.SendErrorResponse(w, r, err)
		return
	}

	httputils.SendResponse(w, r, v1.SuccessResponse{Success: true})
}

//Unsubscribe Handler
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("pushsubscription.Unsubscribe")

	userID, ok := auth.UserOrReportError(w, r)
	if !ok {
		return
	}

	var request v1.PushUnsubscribeRequest

	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	logger.Debugf("Handling Unsubscribe request of %v: %v", userID, request.Endpoint)

	removed, err := h.store.Unsubscribe(ctx, userID, request.Endpoint)
	if err != nil {
		logger.Warnf("Cannot handle request due to unknown error: %+v", err.Error())
		httputils.SendErrorResponse(w, r, err)
		return
	}

	httputils.SendResponse(w, r, v1.PushUnsubscribeResponse{Success: true, Removed: removed})
}

//Toggle Handler
func (h *Handlers) Toggle(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	logger := logging.FromContext(ctx).Named("pushsubscription.Toggle")

	userID, ok := auth.UserOrReportError(w, r)
	if !ok {
		return
	}

	var request v1.PushToggleRequest

	if !httputils.DecodeJSONOrReportError(w, r, &request) {
		return
	}

	logger.Debugf("Handling Toggle request of %v: enabled=%v endpoint=%q", userID, *request.Enabled, request.Endpoint)

	updated, err := h.store.SetEnabled(ctx, userID, request.Endpoint, *request.Enabled)
	if err != nil {
		logger.Warnf("Cannot handle request due to unknown error: %+v", err.Error())
		httputils.SendErrorResponse(w, r, err)
		return
	}

	httputils.SendResponse(w, r, v1.PushToggleResponse{Success: true, Updated: updated})
}
