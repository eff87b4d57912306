package chatws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/user"
	"github.com/IslandManSwevo/island-rides-api/internal/app/domain/vehicle"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage/memory"
	"github.com/IslandManSwevo/island-rides-api/internal/middleware"
)

// newTestHub builds a hub over the in-memory store with a conversation
// between a renter and an owner already open.
func newTestHub(t *testing.T) (*Hub, string, string, string) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	owner, err := store.CreateUser(ctx, user.User{Email: "owner@example.com", Role: user.RoleOwner})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	renter, err := store.CreateUser(ctx, user.User{Email: "renter@example.com", Role: user.RoleRenter})
	if err != nil {
		t.Fatalf("create renter: %v", err)
	}
	v, err := store.CreateVehicle(ctx, vehicle.Vehicle{
		OwnerID: owner.ID, Make: "Toyota", Model: "RAV4", Year: 2022,
		VehicleType: "car", Island: "Nassau", PricePerDay: 85, Available: true,
	})
	if err != nil {
		t.Fatalf("create vehicle: %v", err)
	}

	svc := chat.New(store, store, nil)
	hub := NewHub(svc, Config{}, nil)
	svc.AttachPresence(hub)

	conv, err := svc.Open(ctx, renter.ID, v.ID)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	return hub, conv.ID, renter.ID, owner.ID
}

// dial connects to the test server as the given user.
func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func hubServer(hub *Hub) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Tests inject identity directly instead of minting tokens.
		ctx := middleware.WithUser(r.Context(), r.URL.Query().Get("user"), "")
		hub.ServeHTTP(w, r.WithContext(ctx))
	}))
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestHubDeliversToBothParticipants(t *testing.T) {
	hub, convID, renterID, ownerID := newTestHub(t)
	srv := hubServer(hub)
	defer srv.Close()

	renterConn := dial(t, srv, renterID)
	ownerConn := dial(t, srv, ownerID)

	waitOnline(t, hub, renterID)
	waitOnline(t, hub, ownerID)

	if err := renterConn.WriteJSON(Frame{Type: "send", ConversationID: convID, Body: "is the car free this weekend?"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"owner": ownerConn, "renter": renterConn} {
		frame := readFrame(t, conn)
		if frame.Type != "message" {
			t.Fatalf("%s got frame type %q, want message", name, frame.Type)
		}
		if frame.Message == nil || frame.Message.Body != "is the car free this weekend?" {
			t.Fatalf("%s got unexpected message: %+v", name, frame.Message)
		}
		if frame.Message.SenderID != renterID {
			t.Fatalf("%s got sender %q, want %q", name, frame.Message.SenderID, renterID)
		}
	}
}

func TestHubRejectsNonParticipant(t *testing.T) {
	hub, convID, _, _ := newTestHub(t)
	srv := hubServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "stranger")
	waitOnline(t, hub, "stranger")

	if err := conn.WriteJSON(Frame{Type: "send", ConversationID: convID, Body: "hello"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Type != "error" {
		t.Fatalf("got frame type %q, want error", frame.Type)
	}
}

func TestHubPresence(t *testing.T) {
	hub, _, renterID, _ := newTestHub(t)
	srv := hubServer(hub)
	defer srv.Close()

	if hub.Online(renterID) {
		t.Fatal("renter should start offline")
	}
	conn := dial(t, srv, renterID)
	waitOnline(t, hub, renterID)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Online(renterID) {
		if time.Now().After(deadline) {
			t.Fatal("renter should be offline after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitOnline(t *testing.T, hub *Hub, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !hub.Online(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never came online", userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubUnauthenticatedUpgrade(t *testing.T) {
	hub, _, _, _ := newTestHub(t)
	srv := hubServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
