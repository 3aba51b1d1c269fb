// Package main runs a demo WebSocket client for route events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Register a supplier to compute against
	supBody := []byte(`{"name":"vivero-demo","location":{"lat":-12.05,"lng":-77.04},"stock":{"roses":20,"tulips":10},"capacity":5}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/suppliers", bytes.NewReader(supBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var sup struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sup); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Supplier ID: %s", sup.ID)

	// Connect WS and subscribe to the firehose channel before computing
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/routes/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"routeId": "all"})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger a route.computed event
	time.Sleep(500 * time.Millisecond)
	computeBody := []byte(fmt.Sprintf(`{"originSupplierId":%q,"destinations":[{"location":{"lat":-12.06,"lng":-77.03},"demand":{"roses":2}}]}`, sup.ID))
	cReq, _ := http.NewRequest(http.MethodPost, base+"/v1/routes/compute", bytes.NewReader(computeBody))
	cReq.Header.Set("Content-Type", "application/json")
	_, _ = http.DefaultClient.Do(cReq)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
