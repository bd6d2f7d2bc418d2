package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiClient is a thin wrapper over the keeper's admin API.
type apiClient struct {
	http *resty.Client
}

func newAPIClient(server string) *apiClient {
	c := resty.New().
		SetBaseURL(server).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &apiClient{http: c}
}

// do sends a request and prints the JSON response. Non-2xx responses
// become errors carrying the server's error body.
func (c *apiClient) do(method, path string, body interface{}) error {
	req := c.http.R()
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, e.Error, resp.Status())
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status())
	}

	return printJSON(resp.Body())
}

// printJSON re-indents the response body for the terminal.
func printJSON(raw []byte) error {
	if len(raw) == 0 {
		fmt.Println("ok")
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not JSON, print as-is.
		fmt.Println(string(raw))
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
