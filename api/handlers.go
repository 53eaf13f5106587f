package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"portal-api/domain"
	"portal-api/subscription"
)

// EventsService is the event lifecycle surface the handlers need.
type EventsService interface {
	Create(ctx context.Context, in domain.NewEventInput) (*domain.Event, error)
	Get(ctx context.Context, id string) (*domain.Event, error)
	List(ctx context.Context) ([]domain.Event, error)
	Delete(ctx context.Context, eventID string) error
}

// RegistrationsService is the ledger surface the handlers need.
type RegistrationsService interface {
	Register(ctx context.Context, eventID, userID string, profile domain.StudentProfile) (*domain.Registration, error)
	Roster(ctx context.Context, eventID string) ([]domain.Registration, error)
	Count(ctx context.Context, eventID string) (int, error)
}

// ChatService is the message log surface the handlers need.
type ChatService interface {
	Send(ctx context.Context, text, authorID string, profile domain.AuthorProfile) (*domain.Message, error)
	History(ctx context.Context) ([]domain.Message, error)
}

// NotificationsService is the announcements surface the handlers need.
type NotificationsService interface {
	Announce(ctx context.Context, in domain.NewNotificationInput) (*domain.Notification, error)
	List(ctx context.Context) ([]domain.Notification, error)
}

// Services bundles the domain services the API exposes.
type Services struct {
	Events        EventsService
	Registrations RegistrationsService
	Chat          ChatService
	Notifications NotificationsService
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, auth Authenticator, streams *subscription.Manager, logger *log.Logger) {
	e.GET("/api/events", getEvents(svc.Events, auth, logger))
	e.POST("/api/events", postEvent(svc.Events, auth))
	e.DELETE("/api/events/:id", deleteEvent(svc.Events, auth, logger))
	e.GET("/api/events/:id/registrations", getRoster(svc.Registrations, auth))
	e.POST("/api/events/:id/register", postRegister(svc.Registrations, auth, logger))
	e.GET("/api/messages", getMessages(svc.Chat, auth))
	e.POST("/api/messages", postMessage(svc.Chat, auth, logger))
	e.GET("/api/notifications", getNotifications(svc.Notifications, auth))
	e.POST("/api/notifications", postNotification(svc.Notifications, auth))
	e.GET("/api/stream", streamCollection(streams, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func authenticate(c echo.Context, auth Authenticator) (string, error) {
	return auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func getEvents(events EventsService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newRequestMetrics(logger, "/api/events")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := authenticate(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		fetchStart := time.Now()
		list, fetchErr := events.List(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: fetchErr.Error()})
			return err
		}
		metrics.SetItemsReturned(len(list))
		err = c.JSON(http.StatusOK, list)
		return err
	}
}

func postEvent(events EventsService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := authenticate(c, auth); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var in domain.NewEventInput
		if err := decodeBody(c, &in); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if in.Title == "" || in.Date == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title and date are required"})
		}
		ev, err := events.Create(ctx, in)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, ev)
	}
}

// deleteEvent is destructive and irreversible, so the explicit
// confirmation from the UI dialog travels with the request.
func deleteEvent(events EventsService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newRequestMetrics(logger, "/api/events/:id")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := authenticate(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}
		if c.QueryParam("confirm") != "true" {
			metrics.SetErrorStage("confirm")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "confirm=true required"})
			return err
		}
		eventID := c.Param("id")
		writeStart := time.Now()
		deleteErr := events.Delete(ctx, eventID)
		metrics.ObserveWrite(time.Since(writeStart))
		if deleteErr != nil {
			var partial *domain.PartialCascadeError
			if errors.As(deleteErr, &partial) {
				metrics.SetErrorStage("cascade")
				c.Logger().Error(deleteErr)
				err = c.JSON(http.StatusConflict, cascadeFailureResponse{
					Error:        "cascade delete incomplete",
					EventID:      partial.EventID,
					Remaining:    partial.Remaining,
					EventDeleted: partial.EventDeleted,
					RetryQueued:  true,
				})
				return err
			}
			metrics.SetErrorStage("storage")
			c.Logger().Error(deleteErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: deleteErr.Error()})
			return err
		}
		err = c.NoContent(http.StatusNoContent)
		return err
	}
}

func getRoster(regs RegistrationsService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := authenticate(c, auth); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		// count=true skips the roster payload for views that only render
		// the attendee number.
		if c.QueryParam("count") == "true" {
			n, err := regs.Count(ctx, c.Param("id"))
			if err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			}
			return c.JSON(http.StatusOK, countResponse{Count: n})
		}
		roster, err := regs.Roster(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, roster)
	}
}

func postRegister(regs RegistrationsService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newRequestMetrics(logger, "/api/events/:id/register")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := authenticate(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}
		var in registerRequest
		if decodeErr := decodeBody(c, &in); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return err
		}
		writeStart := time.Now()
		reg, regErr := regs.Register(ctx, c.Param("id"), userID, domain.StudentProfile{Name: in.Name, Email: in.Email})
		metrics.ObserveWrite(time.Since(writeStart))
		if regErr != nil {
			switch {
			case errors.Is(regErr, domain.ErrAlreadyRegistered):
				metrics.SetErrorStage("duplicate")
				err = c.JSON(http.StatusConflict, errorResponse{Error: "already registered"})
			case errors.Is(regErr, domain.ErrNotAuthenticated):
				metrics.SetErrorStage("auth")
				err = c.JSON(http.StatusUnauthorized, errorResponse{Error: regErr.Error()})
			default:
				metrics.SetErrorStage("storage")
				c.Logger().Error(regErr)
				err = c.JSON(http.StatusInternalServerError, errorResponse{Error: regErr.Error()})
			}
			return err
		}
		err = c.JSON(http.StatusCreated, reg)
		return err
	}
}

func getMessages(chat ChatService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := authenticate(c, auth); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		msgs, err := chat.History(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, msgs)
	}
}

func postMessage(chat ChatService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newRequestMetrics(logger, "/api/messages")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := authenticate(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}
		var in sendMessageRequest
		if decodeErr := decodeBody(c, &in); decodeErr != nil {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
			return err
		}
		if in.Text == "" {
			metrics.SetErrorStage("decode")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "text is required"})
			return err
		}
		writeStart := time.Now()
		msg, sendErr := chat.Send(ctx, in.Text, userID, domain.AuthorProfile{Name: in.AuthorName, Avatar: in.AuthorAvatar})
		metrics.ObserveWrite(time.Since(writeStart))
		if sendErr != nil {
			if errors.Is(sendErr, domain.ErrNotAuthenticated) {
				metrics.SetErrorStage("auth")
				err = c.JSON(http.StatusUnauthorized, errorResponse{Error: sendErr.Error()})
				return err
			}
			metrics.SetErrorStage("storage")
			c.Logger().Error(sendErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: sendErr.Error()})
			return err
		}
		err = c.JSON(http.StatusCreated, msg)
		return err
	}
}

func getNotifications(notes NotificationsService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := authenticate(c, auth); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		ns, err := notes.List(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, ns)
	}
}

func postNotification(notes NotificationsService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := authenticate(c, auth); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var in domain.NewNotificationInput
		if err := decodeBody(c, &in); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if in.Title == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title is required"})
		}
		n, err := notes.Announce(ctx, in)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, n)
	}
}
