package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"edgegrid/internal/models"
)

// StatusPath is served by every edge node agent.
const StatusPath = "/status"

var ErrNoEndpoint = errors.New("node has no status endpoint")

// HTTPSource reads node reports from the agents' status endpoints.
type HTTPSource struct {
	HTTP  *http.Client
	nodes map[string]string
}

func NewHTTPSource(nodes map[string]string, timeout time.Duration) *HTTPSource {
	h := &HTTPSource{HTTP: &http.Client{Timeout: timeout}, nodes: make(map[string]string, len(nodes))}
	for id, base := range nodes {
		h.nodes[id] = strings.TrimRight(base, "/")
	}
	return h
}

func (h *HTTPSource) Fetch(ctx context.Context, node models.Node) (models.NodeReport, error) {
	base, ok := h.nodes[node.ID]
	if !ok {
		return models.NodeReport{}, ErrNoEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+StatusPath, nil)
	if err != nil {
		return models.NodeReport{}, err
	}
	resp, err := h.HTTP.Do(req)
	if err != nil {
		return models.NodeReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.NodeReport{}, fmt.Errorf("status endpoint returned %s", resp.Status)
	}
	var rep models.NodeReport
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rep); err != nil {
		return models.NodeReport{}, fmt.Errorf("decode status: %w", err)
	}
	return rep, nil
}
