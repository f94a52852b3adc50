package wsbridge

import (
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dqx0.com/go/connective/httpx"
	"dqx0.com/go/connective/internal/obs"
)

func startServer(t *testing.T) (*httpx.Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := httpx.NewServer("")
	s.Logger = obs.NopLogger{}
	if err := s.StartOn(ln); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = s.StopForced() })
	return s, ln.Addr().String()
}

func TestBridge_Echo(t *testing.T) {
	s, addr := startServer(t)
	s.Handlers().Register(New("/ws", nil, func(ws *websocket.Conn, req *httpx.Request) {
		for {
			mt, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, append([]byte(req.Path()+":"), msg...)); err != nil {
				return
			}
		}
	}))

	ws, res, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	if res.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status=%d", res.StatusCode)
	}
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, m := range []string{"one", "two"} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, got, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(got) != "/ws:"+m {
			t.Fatalf("echo=%q", got)
		}
	}
}

func TestBridge_PlainRequestNotMatched(t *testing.T) {
	s, addr := startServer(t)
	s.Handlers().Register(New("/ws", nil, func(*websocket.Conn, *httpx.Request) {}))

	res, err := http.Get("http://" + addr + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", res.StatusCode)
	}
}

func TestBridge_BadVersionRejected(t *testing.T) {
	s, addr := startServer(t)
	s.Handlers().Register(New("/ws", nil, func(*websocket.Conn, *httpx.Request) {}))

	req, _ := http.NewRequest("GET", "http://"+addr+"/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "8")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", res.StatusCode)
	}
}
