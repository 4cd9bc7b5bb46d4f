package http

import (
	"context"
	"log/slog"
	"net/http"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"
)

type EnrollmentRefunder interface {
	Refund(ctx context.Context, enrollmentID int64) (model.RefundResponse, error)
}

type ClaimSweeper interface {
	ExpireLapsedClaims(ctx context.Context) (int, error)
}

type SweepResponse struct {
	Success bool `json:"success"`
	Notified int `json:"notified"`
}

type AdminHttp struct {
	Refunder EnrollmentRefunder
	Waitlist ClaimSweeper
}

func RegisterAdminHttp(mux *http.ServeMux, adminKey string, refunder EnrollmentRefunder, waitlist ClaimSweeper) *AdminHttp {
	in := &AdminHttp{Refunder: refunder, Waitlist: waitlist}
	guard := AdminMiddleware(adminKey)

	mux.Handle("POST /api/admin/enrollments/{id}/refund", guard(http.HandlerFunc(in.refund)))
	mux.Handle("POST /api/admin/waitlist/sweep", guard(http.HandlerFunc(in.sweep)))

	return in
}

func (in *AdminHttp) refund(w http.ResponseWriter, r *http.Request) {
	enrollmentID, err := pathID(r, "id")
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "AdminHttp.refund")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "admin refund requested", traceIdAttr, slog.Int64(constant.LogFieldEnrollmentID, enrollmentID))

	resp, err := in.Refunder.Refund(ctx, enrollmentID)
	if err != nil {
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (in *AdminHttp) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "AdminHttp.sweep")
	defer span.End()

	notified, err := in.Waitlist.ExpireLapsedClaims(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "waitlist sweep failed", common.ExtractTraceIDFromCtx(ctx),
			slog.Int("notified", notified), slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, SweepResponse{Success: true, Notified: notified})
}
