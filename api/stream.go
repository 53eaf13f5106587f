package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"portal-api/subscription"
)

type streamPayload struct {
	Collection string          `json:"collection"`
	Seq        int64           `json:"seq,omitempty"`
	Items      json.RawMessage `json:"items"`
}

// streamCollection serves a live query over SSE: the full current result
// set immediately, then a fresh full snapshot after every committed
// change to the collection.
func streamCollection(streams *subscription.Manager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may ride a query
		// parameter instead.
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if _, err := auth.UserIDFromAuthHeader(authHeader); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		collection := c.QueryParam("collection")
		ctx := c.Request().Context()
		sub, err := streams.Subscribe(ctx, collection)
		if err != nil {
			var unknown *subscription.UnknownCollectionError
			if errors.As(err, &unknown) {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: unknown.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		defer sub.Unsubscribe()

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-sub.Snapshots():
				if !ok {
					return nil
				}
				payload, err := json.Marshal(streamPayload{Collection: snap.Collection, Seq: snap.Seq, Items: snap.Data})
				if err != nil {
					c.Logger().Error(err)
					return err
				}
				if _, err := c.Response().Write([]byte("data: ")); err != nil {
					return err
				}
				if _, err := c.Response().Write(payload); err != nil {
					return err
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return err
				}
				flusher.Flush()
			}
		}
	}
}
