package http

import (
	"context"
	"log/slog"
	"net/http"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/common/vars"
	"workshop-enrollment/model"

	"github.com/go-playground/validator/v10"
)

type WaitlistJoiner interface {
	Join(ctx context.Context, workshopID int64, req model.JoinWaitlistRequest) (model.JoinWaitlistResponse, error)
}

type WorkshopHttp struct {
	Waitlist WaitlistJoiner
	Validate *validator.Validate
}

func RegisterWorkshopHttp(mux *http.ServeMux, waitlist WaitlistJoiner, validate *validator.Validate) *WorkshopHttp {
	in := &WorkshopHttp{Waitlist: waitlist, Validate: validate}

	mux.HandleFunc("GET /health", in.health)
	mux.HandleFunc("GET /api/workshops", in.list)
	mux.HandleFunc("POST /api/workshops/{id}/waitlist", in.joinWaitlist)

	return in
}

func (in *WorkshopHttp) health(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, model.MessageResponse{Success: true, Message: "ok"})
}

func (in *WorkshopHttp) list(w http.ResponseWriter, r *http.Request) {
	workshops := vars.GetWorkshops()
	if workshops == nil {
		workshops = []model.WorkshopAvailability{}
	}
	writeJSONResponse(w, http.StatusOK, workshops)
}

func (in *WorkshopHttp) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	workshopID, err := pathID(r, "id")
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	var req model.JoinWaitlistRequest
	if err = decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	if err = in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "WorkshopHttp.joinWaitlist")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	resp, err := in.Waitlist.Join(ctx, workshopID, req)
	if err != nil {
		slog.WarnContext(ctx, "failed to join waitlist", traceIdAttr,
			slog.Int64(constant.LogFieldWorkshopID, workshopID), slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
