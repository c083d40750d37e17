package errx

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// WrapPostgres maps pgx errors to AppError. Server-reported errors (syntax,
// constraint, permission) keep the SQLSTATE in the message so the caller can
// surface it to the model.
func WrapPostgres(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return New(err, http.StatusUnprocessableEntity, PostgresErrorMessage+" ("+pgErr.Code+")")
	}

	return New(err, http.StatusBadGateway, PostgresErrorMessage)
}
