package cloudinary

import (
	"bytes"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client uploads images to Cloudinary using their REST API. The attendance
// worker uses it to offload detection snapshots out of the database.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	HTTP      *http.Client
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

// UploadDataURL uploads a base64 data URL image ("data:image/jpeg;base64,...")
// — the format detection snapshots are stored in. Raw base64 is accepted too.
func (c *Client) UploadDataURL(data string) (*UploadResult, error) {
	// Cloudinary accepts data URIs directly via the "file" param
	return c.upload(func(w *multipart.Writer) error {
		return w.WriteField("file", data)
	})
}

// UploadBytes uploads raw image bytes, used for student reference photos.
func (c *Client) UploadBytes(data []byte, filename string) (*UploadResult, error) {
	return c.upload(func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return fmt.Errorf("create form file failed: %w", err)
		}
		_, err = io.Copy(part, bytes.NewReader(data))
		return err
	})
}

func (c *Client) upload(addFile func(*multipart.Writer) error) (*UploadResult, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	if err := addFile(w); err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	w.Close()

	url := fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", c.CloudName)
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: upload failed (%d): %s", resp.StatusCode, string(body))
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return &result, nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key and file are excluded from the signature per Cloudinary spec.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
