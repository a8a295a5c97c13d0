package acceptance

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/ridemarket-backend/api"
	"github.com/semanticallynull/ridemarket-backend/booking"
	"github.com/semanticallynull/ridemarket-backend/dispatch"
	"github.com/semanticallynull/ridemarket-backend/internal/o11y"
	"github.com/semanticallynull/ridemarket-backend/internal/ws"
	"github.com/semanticallynull/ridemarket-backend/partnership"
	"github.com/semanticallynull/ridemarket-backend/session"
	"github.com/semanticallynull/ridemarket-backend/user"
)

type TestServer struct {
	DB          *sqlx.DB
	Server      *httptest.Server
	Dispatcher  *dispatch.Dispatcher
	Sessions    *session.Registry
	BookingRepo *booking.Repository
}

// NewTestServer wires the full stack against the database in DATABASE_URL.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	db, err := sqlx.Connect("pgx", dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	migrate(t, db)
	cleanupTestData(t, db)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	obs := &o11y.Observability{Logger: logger, Registry: prometheus.NewRegistry()}

	ur := user.NewRepository(db)
	pr := partnership.NewRepository(db)
	bkr := booking.NewRepository(db)
	resolver := partnership.NewResolver(pr, ur, logger)
	sessions := session.NewRegistry()

	hub := ws.NewHub(sessions, logger, ws.HubConfig{})
	d := dispatch.New(bkr, ur, resolver, sessions, hub, logger, dispatch.WithOfferTTL(time.Minute))
	hub.SetHandler(ws.NewRouter(d, resolver, bkr, ur, sessions, hub, logger))

	a := api.New(obs, ur, resolver, bkr, api.Config{Sessions: hub})
	srv := httptest.NewServer(a.Router())

	ts := &TestServer{
		DB:          db,
		Server:      srv,
		Dispatcher:  d,
		Sessions:    sessions,
		BookingRepo: bkr,
	}
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		db.Close()
	})
	return ts
}

func migrate(t *testing.T, db *sqlx.DB) {
	t.Helper()

	schema, err := os.ReadFile("../migrations/001_init.sql")
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
}

func cleanupTestData(t *testing.T, db *sqlx.DB) {
	t.Helper()

	// Delete in order of dependencies
	for _, table := range []string{"bookings", "partnerships", "users"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("warning: failed to clean %s: %v", table, err)
		}
	}
}

func (ts *TestServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, ts.Server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, raw
}

// CreateUser registers a user over REST and returns it.
func (ts *TestServer) CreateUser(t *testing.T, typ user.Type, name string) user.User {
	t.Helper()

	body := map[string]any{"email": name + "@example.com", "userType": typ.String()}
	if typ == user.Company {
		body["companyName"] = name
	} else {
		body["vendorName"] = name
	}
	status, raw := ts.do(t, http.MethodPost, "/users", body)
	if status != http.StatusCreated {
		t.Fatalf("failed to create %s %s: %d %s", typ, name, status, raw)
	}
	var resp struct {
		User user.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	return resp.User
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is a websocket session of one actor.
type Client struct {
	t    *testing.T
	conn *websocket.Conn
	// SessionID is assigned by the server on connect.
	SessionID string
}

func (ts *TestServer) Connect(t *testing.T, u user.User) *Client {
	t.Helper()

	q := url.Values{"actorType": {u.Type.String()}, "actorId": {u.ID.String()}}
	target := "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws?" + q.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		t.Fatalf("failed to connect %s: %v", u.ID, err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &Client{t: t, conn: conn}
	var registered ws.SessionRegistered
	c.Expect(ws.EventSessionRegistered, &registered)
	c.SessionID = registered.SessionID
	return c
}

func (c *Client) Send(msgType string, data any) {
	c.t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatal(err)
	}
	frame, err := json.Marshal(envelope{Type: msgType, Data: raw})
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("failed to send %s: %v", msgType, err)
	}
}

// Expect skips frames until one of the given type arrives and decodes it into v.
func (c *Client) Expect(msgType string, v any) {
	c.t.Helper()
	c.ExpectOneOf(v, msgType)
}

// ExpectOneOf returns the type of the first frame matching any of types.
func (c *Client) ExpectOneOf(v any, types ...string) string {
	c.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		c.conn.SetReadDeadline(deadline)
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %v: %v", types, err)
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.t.Fatalf("malformed frame %s: %v", raw, err)
		}
		for _, typ := range types {
			if env.Type != typ {
				continue
			}
			if v != nil {
				if err := json.Unmarshal(env.Data, v); err != nil {
					c.t.Fatalf("failed to decode %s: %v", env.Type, err)
				}
			}
			return env.Type
		}
	}
}
