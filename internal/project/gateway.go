package project

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"estate-portal/internal/backend"
	"estate-portal/internal/profile"
	"estate-portal/prometheus"

	"go.uber.org/zap"
)

var (
	// ErrNotAuthorized is returned when a non-admin attempts a mutation.
	// The check runs before any backend call is issued.
	ErrNotAuthorized = errors.New("project: admin role required")

	// ErrConfirmationRequired is returned when a delete arrives without
	// the explicit confirmation flag.
	ErrConfirmationRequired = errors.New("project: delete requires confirmation")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError describes a rejected form field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("project: invalid %s: %s", e.Field, e.Reason)
}

// CreateInput carries the raw create form. Numeric fields arrive as the
// strings the form submitted; empty means "not provided".
type CreateInput struct {
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email"`
	SiteAddress     string `json:"site_address"`
	Country         string `json:"country"`
	State           string `json:"state"`
	City            string `json:"city"`
	Pin             string `json:"pin"`
	SiteArea        string `json:"site_area"`
	SiteAreaUnit    string `json:"site_area_unit"`
	ProjectArea     string `json:"project_area"`
	ProjectAreaUnit string `json:"project_area_unit"`
	Basements       string `json:"basements"`
	Floors          string `json:"floors"`
	BuildingProfile string `json:"building_profile"`
	ProjectCost     string `json:"project_cost"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
}

// Gateway performs project mutations. Every operation re-checks the acting
// profile's role; the UI hiding a button is not an access control.
type Gateway struct {
	tables *backend.TableClient
	log    *zap.Logger
	now    func() time.Time
}

// NewGateway creates a mutation gateway over the backend table API.
func NewGateway(tables *backend.TableClient, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{tables: tables, log: log, now: time.Now}
}

// Create inserts a new project. Only admins may create; the role check
// happens before any validation or network traffic.
func (g *Gateway) Create(ctx context.Context, token string, acting *profile.Profile, in CreateInput) (*Project, error) {
	if !acting.IsAdmin() {
		return nil, ErrNotAuthorized
	}

	rec, err := buildRecord(in)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = g.now().UTC()
	rec.CreatedBy = acting.ID

	defer prometheus.TrackBackendCall("project_create")(time.Now())

	var rows []Project
	if err := g.tables.Insert(ctx, token, projectsTable, rec, &rows); err != nil {
		g.log.Error("project create failed",
			zap.String("client_email", rec.ClientEmail),
			zap.Error(err),
		)
		return nil, err
	}
	prometheus.ProjectOperationCounter.WithLabelValues("create").Inc()
	if len(rows) > 0 {
		return &rows[0], nil
	}
	return rec, nil
}

// Delete removes a project by id. Admin-only, and the caller must set
// confirmed explicitly. Deleting an already-deleted id succeeds: the
// desired end state holds either way.
func (g *Gateway) Delete(ctx context.Context, token string, acting *profile.Profile, id string, confirmed bool) error {
	if !acting.IsAdmin() {
		return ErrNotAuthorized
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	defer prometheus.TrackBackendCall("project_delete")(time.Now())

	if err := g.tables.Delete(ctx, token, projectsTable, backend.Eq("id", id)); err != nil {
		g.log.Error("project delete failed",
			zap.String("project_id", id),
			zap.Error(err),
		)
		return err
	}
	prometheus.ProjectOperationCounter.WithLabelValues("delete").Inc()
	return nil
}

// buildRecord validates and coerces the raw form into a record ready for
// insertion. Empty optional numerics become null, not zero.
func buildRecord(in CreateInput) (*Project, error) {
	rec := &Project{
		ClientName:      strings.TrimSpace(in.ClientName),
		ClientEmail:     strings.TrimSpace(in.ClientEmail),
		SiteAddress:     strings.TrimSpace(in.SiteAddress),
		Country:         strings.TrimSpace(in.Country),
		State:           strings.TrimSpace(in.State),
		City:            strings.TrimSpace(in.City),
		Pin:             strings.TrimSpace(in.Pin),
		SiteAreaUnit:    strings.TrimSpace(in.SiteAreaUnit),
		ProjectAreaUnit: strings.TrimSpace(in.ProjectAreaUnit),
		BuildingProfile: strings.TrimSpace(in.BuildingProfile),
		Currency:        strings.TrimSpace(in.Currency),
		Status:          strings.TrimSpace(in.Status),
	}

	if rec.ClientName == "" {
		return nil, &ValidationError{Field: "client_name", Reason: "must not be empty"}
	}
	if !emailPattern.MatchString(rec.ClientEmail) {
		return nil, &ValidationError{Field: "client_email", Reason: "must be a valid email address"}
	}
	if rec.SiteAddress == "" {
		return nil, &ValidationError{Field: "site_address", Reason: "must not be empty"}
	}

	var err error
	if rec.SiteArea, err = optionalFloat("site_area", in.SiteArea); err != nil {
		return nil, err
	}
	if rec.ProjectArea, err = optionalFloat("project_area", in.ProjectArea); err != nil {
		return nil, err
	}
	if rec.ProjectCost, err = optionalFloat("project_cost", in.ProjectCost); err != nil {
		return nil, err
	}
	if rec.Basements, err = optionalInt("basements", in.Basements); err != nil {
		return nil, err
	}
	if rec.Floors, err = optionalInt("floors", in.Floors); err != nil {
		return nil, err
	}

	if rec.Currency == "" {
		rec.Currency = "INR"
	}
	if rec.Status == "" {
		rec.Status = "planned"
	}
	return rec, nil
}

func optionalFloat(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ValidationError{Field: field, Reason: "must be a number"}
	}
	return &v, nil
}

func optionalInt(field, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ValidationError{Field: field, Reason: "must be a whole number"}
	}
	return &v, nil
}
