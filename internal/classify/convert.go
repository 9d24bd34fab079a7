package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/resilience/internal/core/domain"
)

const grpcCodePrefix = "grpc:"

// FromError converts a Go error into its Raw shape. Backend errors from
// pgx, lib/pq and gRPC become BackendError so their codes drive
// classification; everything else is an Exception.
func FromError(err error) Raw {
	if err == nil {
		return Nil{}
	}

	var be *BackendError
	if errors.As(err, &be) && be != nil {
		out := *be
		if out.Err == nil {
			out.Err = err
		}
		return out
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return BackendError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Hint:    pgErr.Hint,
			Err:     err,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return BackendError{
			Code:    string(pqErr.Code),
			Message: pqErr.Message,
			Details: pqErr.Detail,
			Hint:    pqErr.Hint,
			Err:     err,
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return fromStatus(st, err)
	}

	return Exception{
		Name:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Err:     err,
	}
}

// fromStatus maps a gRPC status. An ErrorInfo reason that is a known backend
// code wins over the status code itself.
func fromStatus(st *status.Status, err error) BackendError {
	code := grpcCodePrefix + st.Code().String()
	var details []string

	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.ErrorInfo:
			if _, known := backendCodes[info.GetReason()]; known {
				code = info.GetReason()
			}
			details = append(details, fmt.Sprintf("reason=%s domain=%s", info.GetReason(), info.GetDomain()))
		case *errdetails.QuotaFailure:
			for _, v := range info.GetViolations() {
				details = append(details, fmt.Sprintf("quota %s: %s", v.GetSubject(), v.GetDescription()))
			}
		case *errdetails.BadRequest:
			for _, v := range info.GetFieldViolations() {
				details = append(details, fmt.Sprintf("field %s: %s", v.GetField(), v.GetDescription()))
			}
		case *errdetails.RetryInfo:
			details = append(details, fmt.Sprintf("retry after %s", info.GetRetryDelay().AsDuration()))
		}
	}

	return BackendError{
		Code:    code,
		Message: st.Message(),
		Details: strings.Join(details, "; "),
		Err:     err,
	}
}

// ClassifyError is shorthand for Classify(FromError(err), ctx).
func ClassifyError(err error, ctx domain.ErrorContext) domain.ClassifiedError {
	return Classify(FromError(err), ctx)
}
