package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrNoRows is returned when a write that should echo a row returned none.
var ErrNoRows = errors.New("backend returned no rows")

// SelectRows reads table into T and validates every row.
func SelectRows[T any](ctx context.Context, q Querier, table string, query Query) ([]T, error) {
	var rows []T
	if err := q.Select(ctx, table, query, &rows); err != nil {
		return nil, err
	}
	return checkRows(table, rows)
}

// RPCRows calls a set-returning function.
func RPCRows[T any](ctx context.Context, q Querier, fn string, params any) ([]T, error) {
	var rows []T
	if err := q.RPC(ctx, fn, params, &rows); err != nil {
		return nil, err
	}
	return checkRows(fn, rows)
}

// InsertRow inserts row and returns the stored version.
func InsertRow[T any](ctx context.Context, q Querier, table string, row any) (T, error) {
	var rows []T
	var zero T
	if err := q.Insert(ctx, table, row, &rows); err != nil {
		return zero, err
	}
	return firstRow(table, rows)
}

// UpdateRow patches the rows matching filters and returns the first updated one.
func UpdateRow[T any](ctx context.Context, q Querier, table string, filters []Filter, patch any) (T, error) {
	var rows []T
	var zero T
	if err := q.Update(ctx, table, filters, patch, &rows); err != nil {
		return zero, err
	}
	return firstRow(table, rows)
}

func firstRow[T any](source string, rows []T) (T, error) {
	var zero T
	rows, err := checkRows(source, rows)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%s: %w", source, ErrNoRows)
	}
	return rows[0], nil
}

func checkRows[T any](source string, rows []T) ([]T, error) {
	if rows == nil {
		return []T{}, nil
	}
	for i := range rows {
		if err := validate.Struct(&rows[i]); err != nil {
			var invalid *validator.InvalidValidationError
			if errors.As(err, &invalid) {
				// not a struct, nothing to validate
				return rows, nil
			}
			return nil, fmt.Errorf("%s row %d: %w", source, i, err)
		}
	}
	return rows, nil
}
