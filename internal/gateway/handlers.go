package gateway

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades the request and attaches it to hub. An optional
// ?since=<seq> replays buffered batches newer than seq.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := int64(-1)
		if v := r.URL.Query().Get("since"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				http.Error(w, `{"error":"invalid since"}`, http.StatusBadRequest)
				return
			}
			since = n
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn, since)
	}
}
