package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/errs"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/model"
)

type ClaimRedeemer interface {
	Redeem(ctx context.Context, token string, entryID int64, owner model.Owner) (model.Workshop, error)
}

type ClaimHttp struct {
	Claims ClaimRedeemer
}

func RegisterClaimHttp(mux *http.ServeMux, claims ClaimRedeemer) *ClaimHttp {
	in := &ClaimHttp{Claims: claims}

	mux.HandleFunc("GET /api/waitlist/claim", in.redeem)

	return in
}

// redeem binds the claim to the visitor and redirects to the workshop page without
// the token in the URL. The token itself is never logged.
func (in *ClaimHttp) redeem(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")

	query := r.URL.Query()
	token := query.Get(constant.ClaimTokenQuery)
	entryID, err := strconv.ParseInt(query.Get(constant.ClaimEntryQuery), 10, 64)
	if token == "" || err != nil {
		writeErrorResponse(w, errs.ErrClaimInvalid)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "ClaimHttp.redeem")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	entryAttr := slog.Int64(constant.LogFieldEntryID, entryID)

	workshop, err := in.Claims.Redeem(ctx, token, entryID, ownerFromContext(ctx))
	if err != nil {
		slog.InfoContext(ctx, "claim redemption refused", traceIdAttr, entryAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "claim redeemed", traceIdAttr, entryAttr, slog.Int64(constant.LogFieldWorkshopID, workshop.ID))

	target := workshop.URL
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
