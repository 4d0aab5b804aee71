// Package main runs a demo WebSocket client for run events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Four nodes, two vehicles of capacity 15.
const demo = `{"costMatrix":[[0,10,15,20],[10,0,35,25],[15,35,0,30],[20,25,30,0]],"demands":[0,5,10,8],"vehicleCapacities":[15,15],"timeBudgetMs":2000,"async":true}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Start an async solve
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader([]byte(demo)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var solveResp struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&solveResp); err != nil {
		log.Fatal(err)
	}
	if solveResp.RunID == "" {
		log.Fatalf("no run id returned (status %d)", resp.StatusCode)
	}
	log.WithField("run_id", solveResp.RunID).Info("run started")

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + solveResp.RunID + "/events/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}

	_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.WithError(err).Fatal("read")
		}
		switch msg.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "next":
			var evt struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			_ = json.Unmarshal(msg.Payload, &evt)
			log.WithFields(log.Fields{"event": evt.Type, "cost": evt.Data["cost"], "total_cost": evt.Data["totalCost"]}).Info("event")
		case "complete":
			log.Info("run finished")
			return
		}
	}
}
