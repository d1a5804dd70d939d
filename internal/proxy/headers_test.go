package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHopByHop(t *testing.T) {
	tests := []struct {
		name        string
		headers     map[string]string
		wantRemoved []string
		wantPresent []string
	}{
		{
			name: "standard hop-by-hop headers",
			headers: map[string]string{
				"Connection":     "keep-alive",
				"Keep-Alive":     "timeout=5",
				"Content-Type":   "text/html",
				"Content-Length": "123",
			},
			wantRemoved: []string{"Connection", "Keep-Alive"},
			wantPresent: []string{"Content-Type", "Content-Length"},
		},
		{
			name: "proxy headers",
			headers: map[string]string{
				"Proxy-Connection":    "keep-alive",
				"Proxy-Authorization": "Basic abc123",
				"Authorization":       "Bearer token",
			},
			wantRemoved: []string{"Proxy-Connection", "Proxy-Authorization"},
			wantPresent: []string{"Authorization"},
		},
		{
			name: "headers named by Connection",
			headers: map[string]string{
				"Connection":      "X-Custom-Header",
				"X-Custom-Header": "value",
				"Content-Type":    "text/html",
			},
			wantRemoved: []string{"Connection", "X-Custom-Header"},
			wantPresent: []string{"Content-Type"},
		},
		{
			name: "comma separated Connection list",
			headers: map[string]string{
				"Connection": "close, X-Trace , X-Debug",
				"X-Trace":    "1",
				"X-Debug":    "on",
				"Accept":     "*/*",
			},
			wantRemoved: []string{"Connection", "X-Trace", "X-Debug"},
			wantPresent: []string{"Accept"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := make(http.Header)
			for k, v := range tt.headers {
				header.Set(k, v)
			}

			stripHopByHop(header)

			for _, name := range tt.wantRemoved {
				assert.Empty(t, header.Get(name), "header %s should be removed", name)
			}
			for _, name := range tt.wantPresent {
				assert.NotEmpty(t, header.Get(name), "header %s should be kept", name)
			}
		})
	}
}
