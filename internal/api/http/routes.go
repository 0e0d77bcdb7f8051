package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/i474232898/fred-data-proxy/internal/fred"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *fred.Service) {
	v0 := app.Group("/v0")

	v0.Get("/observations", func(c *fiber.Ctx) error {
		var req observationsQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rows, err := service.Observations(c.UserContext(), req.toRange())
		if err != nil {
			return toHTTPError(err)
		}
		if rows == nil {
			rows = []fred.Observation{}
		}
		return c.JSON(rows)
	})

	v0.Get("/series", func(c *fiber.Ctx) error {
		q := seriesQuery{SeriesID: utils.CopyString(c.Query("series_id"))}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		meta, err := service.Series(c.UserContext(), q.SeriesID)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(meta)
	})
}

// toHTTPError maps domain errors onto response codes. Upstream status codes
// are forwarded verbatim; an upstream failure without one is a 503.
func toHTTPError(err error) error {
	var upErr *fred.UpstreamError
	var storeErr *fred.StorageError

	switch {
	case errors.Is(err, fred.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "no series found for requested id")
	case errors.As(err, &upErr):
		code := upErr.StatusCode
		if code < 100 || code > 599 {
			code = fiber.StatusServiceUnavailable
		}
		msg := upErr.Message
		if msg == "" {
			msg = http.StatusText(code)
		}
		return fiber.NewError(code, msg)
	case errors.As(err, &storeErr):
		return fiber.NewError(fiber.StatusInternalServerError, "local cache unavailable")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

type seriesQuery struct {
	SeriesID string `validate:"required,max=64"`
}

// observationsQuery holds query parameters for the observations endpoint.
type observationsQuery struct {
	SeriesID         string `validate:"required,max=64"`
	ObservationStart fred.Date
	ObservationEnd   fred.Date
	RealtimeStart    fred.Date
	RealtimeEnd      fred.Date
}

func (q *observationsQuery) bind(c *fiber.Ctx) error {
	// Query values alias fasthttp buffers; the id outlives the request in the cache.
	q.SeriesID = utils.CopyString(c.Query("series_id"))
	if err := validate.Struct(q); err != nil {
		return err
	}

	for param, dst := range map[string]*fred.Date{
		"observation_start": &q.ObservationStart,
		"observation_end":   &q.ObservationEnd,
		"realtime_start":    &q.RealtimeStart,
		"realtime_end":      &q.RealtimeEnd,
	} {
		d, err := fred.ParseDate(c.Query(param))
		if err != nil {
			return errors.New(param + ": " + err.Error())
		}
		*dst = d
	}

	if !q.ObservationStart.IsZero() && !q.ObservationEnd.IsZero() && q.ObservationEnd.Before(q.ObservationStart) {
		return errors.New("observation_end must not be before observation_start")
	}
	return nil
}

func (q observationsQuery) toRange() fred.RequestedRange {
	return fred.RequestedRange{
		SeriesID:         q.SeriesID,
		ObservationStart: q.ObservationStart,
		ObservationEnd:   q.ObservationEnd,
		RealtimeStart:    q.RealtimeStart,
		RealtimeEnd:      q.RealtimeEnd,
	}
}
