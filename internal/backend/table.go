package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"estate-portal/prometheus"
)

// Filter is a single column predicate in the table API's operator syntax.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Eq builds an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// Order describes result ordering for a select.
type Order struct {
	Column     string
	Descending bool
}

// TableClient wraps the hosted backend's table (REST) endpoints.
type TableClient struct {
	client *Client
}

// NewTableClient creates a table client on top of the shared backend client.
func NewTableClient(client *Client) *TableClient {
	return &TableClient{client: client}
}

func tablePath(table string) string {
	return "/rest/v1/" + table
}

func applyFilters(query url.Values, filters []Filter) {
	for _, f := range filters {
		query.Set(f.Column, f.Op+"."+f.Value)
	}
}

// Select fetches rows from table into dest (a pointer to a slice). Columns
// may be empty to select everything.
func (t *TableClient) Select(
	ctx context.Context,
	token string,
	table string,
	columns []string,
	filters []Filter,
	order *Order,
	dest any,
) error {

	defer prometheus.TrackBackendCall("select")(time.Now())

	query := url.Values{}
	if len(columns) > 0 {
		query.Set("select", strings.Join(columns, ","))
	}
	applyFilters(query, filters)
	if order != nil {
		direction := "asc"
		if order.Descending {
			direction = "desc"
		}
		query.Set("order", order.Column+"."+direction)
	}

	req, err := t.client.newRequest(ctx, http.MethodGet, tablePath(table), query, token, nil)
	if err != nil {
		return err
	}

	if err := t.client.doJSON(req, dest); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("select").Inc()
		return err
	}

	return nil
}

// Insert writes rows into table. With a non-nil dest the inserted
// representation is requested back and decoded into it (dest should point to
// a slice, the table API always returns an array).
func (t *TableClient) Insert(ctx context.Context, token string, table string, rows any, dest any) error {
	defer prometheus.TrackBackendCall("insert")(time.Now())

	req, err := t.client.newRequest(ctx, http.MethodPost, tablePath(table), nil, token, rows)
	if err != nil {
		return err
	}

	if dest != nil {
		req.Header.Set("Prefer", "return=representation")
	}

	if err := t.client.doJSON(req, dest); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("insert").Inc()
		return err
	}

	return nil
}

// Upsert inserts row, merging into the existing row on onConflict collisions.
func (t *TableClient) Upsert(ctx context.Context, token string, table string, onConflict string, row any) error {
	defer prometheus.TrackBackendCall("upsert")(time.Now())

	query := url.Values{}
	if onConflict != "" {
		query.Set("on_conflict", onConflict)
	}

	req, err := t.client.newRequest(ctx, http.MethodPost, tablePath(table), query, token, row)
	if err != nil {
		return err
	}

	req.Header.Set("Prefer", "resolution=merge-duplicates")

	if err := t.client.doJSON(req, nil); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("upsert").Inc()
		return err
	}

	return nil
}

// Delete removes the rows matching filters. Deleting rows that no longer
// exist is a backend no-op and reports success.
func (t *TableClient) Delete(ctx context.Context, token string, table string, filters ...Filter) error {
	defer prometheus.TrackBackendCall("delete")(time.Now())

	query := url.Values{}
	applyFilters(query, filters)

	req, err := t.client.newRequest(ctx, http.MethodDelete, tablePath(table), query, token, nil)
	if err != nil {
		return err
	}

	if err := t.client.doJSON(req, nil); err != nil {
		prometheus.BackendErrorCounter.WithLabelValues("delete").Inc()
		return err
	}

	return nil
}
