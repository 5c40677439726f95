package assessment

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fieldtriage/pkg/pagination"
)

// AuthorHeader names the request header carrying the writer's name.
const AuthorHeader = "X-Author"

// maxBlobBytes bounds an uploaded transport blob.
const maxBlobBytes = 1 << 20

// Codec converts records to and from transport blobs.
type Codec interface {
	Encode(rec *AssessmentRecord) ([]byte, error)
	Decode(blob []byte) (*AssessmentRecord, error)
}

// HandlerOptions carries device-level settings for the HTTP surface.
type HandlerOptions struct {
	DeviceID      string
	DefaultAuthor string
	QRSize        int
	RenderQR      func(blob []byte, size int) ([]byte, error)
}

type Handler struct {
	svc   *Service
	codec Codec
	opts  HandlerOptions
}

func NewHandler(svc *Service, codec Codec, opts HandlerOptions) *Handler {
	return &Handler{svc: svc, codec: codec, opts: opts}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/records", h.ListRecords)
	api.POST("/records", h.CreateRecord)
	api.GET("/records/:id", h.GetRecord)
	api.PUT("/records/:id", h.UpdateRecord)
	api.PUT("/records/:id/outcome", h.UpdateOutcome)
	api.GET("/records/:id/summary", h.GetSummary)
	api.GET("/records/:id/blob", h.ExportBlob)
	api.GET("/records/:id/qr", h.ExportQR)
	api.POST("/imports", h.ImportBlob)
	api.GET("/stats", h.GetStatistics)
	api.GET("/follow-ups", h.ListFollowUps)
}

func (h *Handler) session(c echo.Context) Session {
	author := strings.TrimSpace(c.Request().Header.Get(AuthorHeader))
	if author == "" {
		author = h.opts.DefaultAuthor
	}
	return Session{Author: author, DeviceID: h.opts.DeviceID}
}

// httpError maps domain errors to HTTP status codes.
func httpError(err error) error {
	var pe *PersistenceError
	switch {
	case errors.As(err, &pe):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "assessment record not found")
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrUnresolved):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// -- Record Handlers --

// CreateRecord accepts a partial form; members the body omits keep their
// defaults.
func (h *Handler) CreateRecord(c echo.Context) error {
	in := CreateInput{Fields: DefaultFields()}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Create(c.Request().Context(), h.session(c), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Slice(items, pg))
}

// UpdateRecord replaces the record's fields. Members missing from the body
// keep their stored values. A body that only changes photos is saved without
// a new revision.
func (h *Handler) UpdateRecord(c echo.Context) error {
	ctx := c.Request().Context()
	current, err := h.svc.Get(ctx, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	fields := current.Fields.Clone()
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Edit(ctx, h.session(c), current.PatientID, fields)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateOutcome(c echo.Context) error {
	var in OutcomeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.UpdateOutcome(c.Request().Context(), h.session(c), c.Param("id"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetSummary(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patientId": rec.PatientID,
		"priority":  TriagePriority(rec.Fields),
		"summary":   Summary(rec.PatientID, rec.Fields),
	})
}

// -- Transport Handlers --

func (h *Handler) ExportBlob(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	blob, err := h.codec.Encode(rec)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, blob)
}

func (h *Handler) ExportQR(c echo.Context) error {
	if h.opts.RenderQR == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "qr rendering is not configured")
	}
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	blob, err := h.codec.Encode(rec)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	png, err := h.opts.RenderQR(blob, h.opts.QRSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

type importResponse struct {
	Decision  Decision          `json:"decision"`
	Committed bool              `json:"committed"`
	Record    *AssessmentRecord `json:"record,omitempty"`
}

// ImportBlob reconciles a scanned blob. resolution=adopt|keep|auto commits
// the outcome; resolution=manual (the default) only returns the comparison.
func (h *Handler) ImportBlob(c echo.Context) error {
	resolution := c.QueryParam("resolution")
	switch resolution {
	case "", "manual", "auto":
	default:
		if _, err := ParseResolution(resolution); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	blob, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBlobBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	incoming, err := h.codec.Decode(blob)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	arb := ManualArbitration
	if resolution == "auto" {
		arb = AutoArbitration
	}

	ctx := c.Request().Context()
	d, err := h.svc.Import(ctx, incoming, arb)
	if err != nil {
		return httpError(err)
	}

	if d.Kind == DecisionConflicted {
		if resolution == "" || resolution == "manual" {
			return c.JSON(http.StatusOK, importResponse{Decision: d})
		}
		choice, err := ParseResolution(resolution)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if d, err = d.Resolve(choice); err != nil {
			return httpError(err)
		}
	}

	rec, err := h.svc.Commit(ctx, d)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, importResponse{Decision: d, Committed: true, Record: rec})
}

// -- Derived Reads --

func (h *Handler) GetStatistics(c echo.Context) error {
	st, err := h.svc.Statistics(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}

type followUpItem struct {
	PatientID     string    `json:"patientId"`
	Name          string    `json:"name"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	Summary       string    `json:"summary"`
}

func (h *Handler) ListFollowUps(c echo.Context) error {
	records, err := h.svc.FollowUps(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	items := make([]followUpItem, 0, len(records))
	for _, rec := range records {
		items = append(items, followUpItem{
			PatientID:     rec.PatientID,
			Name:          rec.Fields.Name,
			LastUpdatedAt: rec.LastUpdatedAt,
			Summary:       Summary(rec.PatientID, rec.Fields),
		})
	}
	return c.JSON(http.StatusOK, items)
}
