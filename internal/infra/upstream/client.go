package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
)

// ErrBuildingNotFound is returned when the building service answers 404.
var ErrBuildingNotFound = errors.New("building not found")

// maxBody caps upstream bodies read into memory
const maxBody = 8 << 20

// BuildingClient reads buildings from the estate service: GET {base}/buildings/{id}.
type BuildingClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c *BuildingClient) FetchBuilding(ctx context.Context, id compliance.SubjectID) (*compliance.Building, error) {
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/buildings/" + url.PathEscape(string(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	authorize(req, c.Token)

	body, status, err := do(httpClient(c.HTTP), req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrBuildingNotFound, id)
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: building service returned %d", compliance.ErrNetwork, status)
	}

	var b compliance.Building
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("decode building: %w", err)
	}
	if b.ID == "" {
		b.ID = id
	}
	return &b, nil
}

// AnalysisClient triggers the analysis webhook: POST {url} {"building_id": "..."}.
// Analyses may take minutes, so the default client carries no timeout and only the
// context bounds the call.
type AnalysisClient struct {
	URL   string
	Token string
	HTTP  *http.Client
}

type analysisRequest struct {
	BuildingID string `json:"building_id"`
}

func (c *AnalysisClient) FetchAnalysis(ctx context.Context, id compliance.SubjectID) ([]byte, error) {
	payload, err := json.Marshal(analysisRequest{BuildingID: string(id)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	authorize(req, c.Token)

	body, status, err := do(httpClient(c.HTTP), req)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("%w: analysis webhook returned %d", compliance.ErrNetwork, status)
	}
	return body, nil
}

func do(cli *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := cli.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", compliance.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %w", compliance.ErrNetwork, err)
	}
	if len(body) > maxBody {
		return nil, resp.StatusCode, fmt.Errorf("%w: response too large (over %d bytes)", compliance.ErrNetwork, maxBody)
	}
	return body, resp.StatusCode, nil
}

func authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func httpClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
