package handler

import (
	"errors"
	"net/http"
	"strconv"

	"estate-portal/internal/middleware"
	"estate-portal/internal/project"
	"estate-portal/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ProjectHandler terminates the project routes. All of them run behind the
// session middleware.
type ProjectHandler struct {
	store   *project.Store
	gateway *project.Gateway
}

// NewProjectHandler wires the project routes' dependencies.
func NewProjectHandler(store *project.Store, gateway *project.Gateway) *ProjectHandler {
	return &ProjectHandler{store: store, gateway: gateway}
}

// List returns the projects visible to the caller, optionally narrowed by
// the in-memory view filter. Filter parameters never change the backend
// query, only what comes back to the client.
func (h *ProjectHandler) List(c echo.Context) error {
	log := logger.FromContext(c)
	sess := middleware.SessionFromContext(c)
	prof := middleware.ProfileFromContext(c)

	records, err := h.store.List(c.Request().Context(), sess.AccessToken, prof)
	if err != nil {
		log.Error("Project listing failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":    "could not load projects",
			"projects": records,
		})
	}

	opts := project.FilterOptions{
		Field:        c.QueryParam("filter_by"),
		Term:         c.QueryParam("q"),
		AreaOperator: c.QueryParam("area_op"),
		AreaValue:    c.QueryParam("area_value"),
	}
	if raw := c.QueryParam("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.PageSize = n
		}
	}

	filtered := project.ApplyFilter(records, opts)
	return c.JSON(http.StatusOK, echo.Map{
		"projects": filtered,
		"count":    len(filtered),
		"total":    len(records),
	})
}

// Create inserts a new project. Admin-only.
func (h *ProjectHandler) Create(c echo.Context) error {
	log := logger.FromContext(c)
	sess := middleware.SessionFromContext(c)
	prof := middleware.ProfileFromContext(c)

	var in project.CreateInput
	if err := c.Bind(&in); err != nil {
		log.Error("Failed to parse create request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	created, err := h.gateway.Create(c.Request().Context(), sess.AccessToken, prof, in)
	if err != nil {
		return h.mutationFailure(c, err, "could not create project")
	}

	log.Info("Project created",
		zap.String("project_id", created.ID),
		zap.String("client_email", created.ClientEmail))
	return c.JSON(http.StatusCreated, echo.Map{"project": created})
}

// Delete removes a project by id. Admin-only, and the request must carry
// confirm=true; the UI's dialog alone is not enough.
func (h *ProjectHandler) Delete(c echo.Context) error {
	log := logger.FromContext(c)
	sess := middleware.SessionFromContext(c)
	prof := middleware.ProfileFromContext(c)

	confirmed := c.QueryParam("confirm") == "true"
	id := c.Param("id")

	if err := h.gateway.Delete(c.Request().Context(), sess.AccessToken, prof, id, confirmed); err != nil {
		return h.mutationFailure(c, err, "could not delete project")
	}

	log.Info("Project deleted", zap.String("project_id", id))
	return c.NoContent(http.StatusNoContent)
}

func (h *ProjectHandler) mutationFailure(c echo.Context, err error, fallback string) error {
	log := logger.FromContext(c)

	switch {
	case errors.Is(err, project.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "admin role required"})
	case errors.Is(err, project.ErrConfirmationRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "confirmation required"})
	}

	var verr *project.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": verr.Reason,
			"field": verr.Field,
		})
	}

	log.Error("Project mutation failed", zap.Error(err))
	return backendFailure(c, err, fallback)
}
