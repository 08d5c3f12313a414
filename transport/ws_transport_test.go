package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/magnopus-opensource/csp-realtime/common"
	"github.com/magnopus-opensource/csp-realtime/wire"
)

var testUpgrader = websocket.Upgrader{}

// fakeHub answers GenerateObjectIds with a fixed id list and, once it sees
// that invocation, pushes a server-initiated OnObjectMessage call so the
// test can exercise both the request/response and server-push paths on one
// socket.
func fakeHub(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Target != "GenerateObjectIds" {
			t.Errorf("expected GenerateObjectIds, got %q", env.Target)
			return
		}
		ids, _ := json.Marshal([]uint64{11, 12})
		_ = conn.WriteJSON(envelope{InvocationID: env.InvocationID, Arguments: []json.RawMessage{ids}})

		msg := wire.ObjectMessage{ID: 99, Type: common.SpaceEntityTypeObject, OwnerID: 1}
		frame := encodeFrameArg(msg.Encode())
		_ = conn.WriteJSON(envelope{Target: "OnObjectMessage", Arguments: []json.RawMessage{frame}})

		time.Sleep(50 * time.Millisecond)
	}))
}

func TestWSHubTransportGenerateObjectIDsRoundTrip(t *testing.T) {
	srv := fakeHub(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	tr := NewWSHubTransport(nil)

	received := make(chan wire.ObjectMessage, 1)
	tr.SetHandlers(Handlers{
		OnObjectMessage: func(msg wire.ObjectMessage) { received <- msg },
	})

	if err := tr.Connect(context.Background(), wsURL, "tenant-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	ids, err := tr.GenerateObjectIDs(context.Background(), 2)
	if err != nil {
		t.Fatalf("GenerateObjectIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 11 || ids[1] != 12 {
		t.Fatalf("GenerateObjectIDs = %v, want [11 12]", ids)
	}

	select {
	case msg := <-received:
		if msg.ID != 99 {
			t.Errorf("OnObjectMessage id = %d, want 99", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnObjectMessage dispatch")
	}
}

func TestWSHubTransportInvokeWithoutConnectFails(t *testing.T) {
	tr := NewWSHubTransport(nil)
	if _, err := tr.GenerateObjectIDs(context.Background(), 1); err == nil {
		t.Fatalf("expected an error invoking before Connect")
	}
}
