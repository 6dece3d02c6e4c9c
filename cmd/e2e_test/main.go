package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

var baseURL = flag.String("url", "http://localhost:8080", "server base URL")

func main() {
	flag.Parse()
	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health Check
	call("GET", "/health", nil, 200, nil)

	// 2. Register
	username := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	var reg struct {
		UserID int64 `json:"user_id"`
	}
	call("POST", "/users", map[string]string{"username": username, "password": "pw", "confirmation": "pw"}, 201, &reg)
	fmt.Printf("Registered user %s with id %d\n", username, reg.UserID)
	base := fmt.Sprintf("/users/%d", reg.UserID)

	// 3. Quote
	var quote struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	call("GET", "/quote/AAPL", nil, 200, &quote)

	// 4. Buy, then try to oversell
	call("POST", base+"/buy", map[string]interface{}{"symbol": "AAPL", "shares": 2}, 201, nil)
	call("POST", base+"/sell", map[string]interface{}{"symbol": "AAPL", "shares": 3}, 422, nil)
	call("POST", base+"/buy", map[string]interface{}{"symbol": "ZZZZ-NOT-LISTED", "shares": 1}, 400, nil)

	// 5. Portfolio and holdings
	call("GET", base+"/portfolio", nil, 200, nil)
	var holdings []struct {
		Symbol string `json:"symbol"`
		Shares int64  `json:"shares"`
	}
	call("GET", base+"/holdings", nil, 200, &holdings)
	if len(holdings) != 1 || holdings[0].Shares != 2 {
		log.Fatalf("Expected 2 AAPL shares, got %+v", holdings)
	}

	// 6. Sell everything
	call("POST", base+"/sell", map[string]interface{}{"symbol": "AAPL", "shares": 2}, 201, nil)
	call("GET", base+"/holdings", nil, 200, &holdings)
	if len(holdings) != 0 {
		log.Fatalf("Expected no holdings, got %+v", holdings)
	}

	// 7. History
	var history []json.RawMessage
	call("GET", base+"/history", nil, 200, &history)
	if len(history) != 2 {
		log.Fatalf("Expected 2 transactions, got %d", len(history))
	}

	fmt.Println("ALL TESTS PASSED")
}

// call sends body as JSON, checks the status and decodes the response into
// out when out is not nil.
func call(method, path string, body interface{}, expectedStatus int, out interface{}) {
	fmt.Printf("Testing %s %s...\n", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, *baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	fmt.Printf("Response: %s\n", string(respBody))
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			log.Fatalf("Decode failed: %v", err)
		}
	}
}
