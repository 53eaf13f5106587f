package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"portal-api/domain"
	"portal-api/subscription"
)

type staticFetcher struct{ data []byte }

func (f *staticFetcher) FetchSnapshot(ctx context.Context, collection string) ([]byte, error) {
	return f.data, nil
}

func TestStreamDeliversInitialSnapshot(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr := subscription.NewManager(ctx, rc, &staticFetcher{data: []byte(`[{"id":"ev1"}]`)})

	e := echo.New()
	Register(e, Services{
		Events:        &fakeEvents{},
		Registrations: &fakeRegistrations{},
		Chat:          &fakeChat{},
		Notifications: &fakeNotifications{},
	}, testAuth(t), mgr, log.New())
	srv := httptest.NewServer(e)
	defer srv.Close()

	// The token rides a query parameter, as an EventSource client's would.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/stream?collection=events&token="+testToken(t, "u1"), nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %s", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload struct {
			Collection string          `json:"collection"`
			Items      json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
			t.Fatalf("parse frame: %v", err)
		}
		if payload.Collection != domain.CollectionEvents {
			t.Fatalf("collection = %s", payload.Collection)
		}
		if string(payload.Items) != `[{"id":"ev1"}]` {
			t.Fatalf("items = %s", payload.Items)
		}
		return
	}
	t.Fatalf("no data frame received: %v", scanner.Err())
}
