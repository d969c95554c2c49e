package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"scanstudents/internal/model"
)

// UnknownLabel is returned for a detected face that matches no enrolled
// student within the service threshold.
const UnknownLabel = "unknown"

// Box is a face bounding box in frame coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Match is one detected face labeled with the best-matching student id, or
// UnknownLabel.
type Match struct {
	Box      Box     `json:"box"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Known reports whether the match resolved to an enrolled student.
func (m Match) Known() bool { return m.Label != UnknownLabel && m.Label != "" }

// Model is an opaque handle to a gallery of embeddings built server-side
// from student reference photos. One embedding per student per session.
type Model struct {
	ID   string `json:"model_id"`
	Size int    `json:"enrolled"`
}

// Client calls the face detection/embedding microservice.
type Client struct {
	BaseURL   string
	Threshold float64
	HTTP      *http.Client
	Skip      bool
}

// New creates a client. Face processing can take time, so the timeout is
// generous.
func New(baseURL string, threshold float64, skip bool) *Client {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Client{
		BaseURL:   baseURL,
		Threshold: threshold,
		Skip:      skip,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// BuildModel enrolls every student with a usable photo and returns the model
// handle. Students without a photo are skipped client-side; students whose
// photo yields no detectable face are skipped by the service and do not
// block model construction. A nil model with a nil error means no student
// could be enrolled: recognition is disabled but nothing is broken.
func (c *Client) BuildModel(ctx context.Context, students []model.Student) (*Model, error) {
	type enrollee struct {
		ID    string `json:"id"`
		Photo string `json:"photo"`
	}
	var enrollees []enrollee
	for _, s := range students {
		if s.Photo != "" {
			enrollees = append(enrollees, enrollee{ID: s.ID, Photo: s.Photo})
		}
	}
	if len(enrollees) == 0 {
		return nil, nil
	}

	if c.Skip {
		return &Model{ID: "mock-model", Size: len(enrollees)}, nil
	}

	body, _ := json.Marshal(map[string]any{
		"students":  enrollees,
		"threshold": c.Threshold,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/model", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out Model
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Size == 0 {
		// no photo yielded a detectable face
		return nil, nil
	}
	return &out, nil
}

// DetectAndMatch finds all faces in the frame and labels each with the best
// match from the model, or UnknownLabel when nothing clears the threshold.
func (c *Client) DetectAndMatch(ctx context.Context, frame []byte, m *Model) ([]Match, error) {
	if m == nil {
		return nil, fmt.Errorf("face model not ready")
	}
	if c.Skip {
		return []Match{{Box: Box{X: 10, Y: 10, Width: 120, Height: 120}, Label: UnknownLabel, Distance: 1}}, nil
	}

	body, _ := json.Marshal(map[string]any{
		"model_id": m.ID,
		"image":    base64.StdEncoding.EncodeToString(frame),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Faces []Match `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Faces, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
