package postgres

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/eshop/internal/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
	codeInvalidDatetime     = "22007"
	codeDatetimeOverflow    = "22008"
	codeNumericOverflow     = "22003"
)

// translate maps constraint and input errors reported by PostgreSQL to
// operational errors. Other errors are wrapped with op.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return errors.Wrap(err, op)
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return apperr.Invalid("Duplicate field value: %s. Please use another value.", duplicateValue(pgErr))
	case codeForeignKeyViolation:
		return apperr.Invalid("Referenced document does not exist: %s.", pgErr.ConstraintName)
	case codeCheckViolation:
		return apperr.Invalid("Invalid field value: %s.", pgErr.ConstraintName)
	case codeInvalidText, codeInvalidDatetime, codeDatetimeOverflow, codeNumericOverflow:
		return apperr.Invalid("Invalid input value: %s.", pgErr.Message)
	}
	return errors.Wrap(err, op)
}

// duplicateValue extracts the "(col)=(value)" part of a unique violation.
func duplicateValue(e *pgconn.PgError) string {
	if e.Detail == "" {
		return e.ConstraintName
	}
	return strings.TrimSuffix(strings.TrimPrefix(e.Detail, "Key "), " already exists.")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraint
}
