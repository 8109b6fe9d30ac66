// Package handler は参照データを返す読み取り専用の HTTP API です。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"gardener_service/internal/app/logging"
	"gardener_service/internal/app/model"
	"gardener_service/internal/app/repository"
)

// ReferenceReader は API が使う読み取りクエリです。
type ReferenceReader interface {
	ListDiseases(ctx context.Context, q string) ([]model.Disease, error)
	GetDisease(ctx context.Context, id uint) (*model.Disease, error)
	ListSpecies(ctx context.Context) ([]model.Species, error)
	GetSpecies(ctx context.Context, id uint) (*model.Species, error)
}

type Handler struct {
	reader ReferenceReader
	now    func() time.Time
}

func New(reader ReferenceReader) *Handler {
	return &Handler{reader: reader, now: time.Now}
}

// Register はルートを登録します。
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.GET("/enfermedades", h.ListDiseases)
	api.GET("/enfermedades/:id", h.GetDisease)
	api.GET("/especies", h.ListSpecies)
	api.GET("/especies/:id", h.GetSpecies)
}

type healthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "OK",
		Message:   "Servidor funcionando correctamente",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) ListDiseases(c echo.Context) error {
	diseases, err := h.reader.ListDiseases(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, diseases)
}

func (h *Handler) GetDisease(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.reader.GetDisease(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListSpecies(c echo.Context) error {
	species, err := h.reader.ListSpecies(c.Request().Context())
	if err != nil {
		return internalError(err)
	}
	return c.JSON(http.StatusOK, species)
}

func (h *Handler) GetSpecies(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sp, err := h.reader.GetSpecies(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, sp)
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func lookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return internalError(err)
}

func internalError(err error) error {
	logging.Errorf("API: %v", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
