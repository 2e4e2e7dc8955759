package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultImageKitUploadURL is ImageKit's upload API endpoint.
const DefaultImageKitUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

// maxImageBytes caps how much synthesizer output is read.
const maxImageBytes = 20 << 20

// ImageKitSynthesizer fetches AI generated images from an ImageKit URL
// endpoint using the ik-genimg-prompt transformation.
type ImageKitSynthesizer struct {
	endpoint   string
	folder     string
	httpClient *http.Client
	now        func() time.Time
}

var _ ImageSynthesizer = (*ImageKitSynthesizer)(nil)

// NewImageKitSynthesizer creates a synthesizer for the given URL endpoint.
func NewImageKitSynthesizer(endpoint, folder string, httpClient *http.Client) *ImageKitSynthesizer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ImageKitSynthesizer{
		endpoint:   strings.TrimRight(endpoint, "/"),
		folder:     strings.Trim(folder, "/"),
		httpClient: httpClient,
		now:        time.Now,
	}
}

// GenerationURL builds the transformation URL for prompt.
func (s *ImageKitSynthesizer) GenerationURL(prompt string) string {
	return fmt.Sprintf("%s/ik-genimg-prompt-%s/%s/%d.png?tr=w-%d,h-%d",
		s.endpoint,
		url.PathEscape(prompt),
		s.folder,
		s.now().UnixMilli(),
		MaxImageWidth,
		MaxImageHeight,
	)
}

// Synthesize implements ImageSynthesizer.
func (s *ImageKitSynthesizer) Synthesize(ctx context.Context, prompt string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.GenerationURL(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch generated image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image generation returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read generated image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("generated image too large")
	}
	return data, nil
}

// ImageKitUploader stores images in the ImageKit media library.
type ImageKitUploader struct {
	uploadURL  string
	privateKey string
	folder     string
	httpClient *http.Client
}

var _ AssetHost = (*ImageKitUploader)(nil)

// NewImageKitUploader creates an uploader authenticated with privateKey.
func NewImageKitUploader(uploadURL, privateKey, folder string, httpClient *http.Client) *ImageKitUploader {
	if uploadURL == "" {
		uploadURL = DefaultImageKitUploadURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ImageKitUploader{
		uploadURL:  uploadURL,
		privateKey: privateKey,
		folder:     folder,
		httpClient: httpClient,
	}
}

type uploadResponse struct {
	FileID  string `json:"fileId"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Upload implements AssetHost.
func (u *ImageKitUploader) Upload(ctx context.Context, fileName string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	fields := map[string]string{
		"fileName":          fileName,
		"folder":            u.folder,
		"useUniqueFileName": "true",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(u.privateKey, "")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload returned status %d: %s", resp.StatusCode, out.Message)
	}
	return out.URL, nil
}
