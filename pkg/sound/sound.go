// Package sound is a client for the sound generation API.
package sound

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fxsound/soundstudio/pkg/authclient"
	"github.com/fxsound/soundstudio/pkg/errs"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goccy/go-json"
)

const (
	PathGenerate     = "/sound/generate"
	PathMySounds     = "/sound/my-sounds"
	PathAudio        = "/sound/audio/"
	PathAnalyzeImage = "/sound/analyze-image"

	DefaultNumOfSteps = 200
	DefaultDuration   = 5

	audioExtension = ".wav"
)

type API interface {
	ListSounds(ctx context.Context) ([]Sound, error)
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Audio(ctx context.Context, filename string) ([]byte, error)
	AnalyzeImage(ctx context.Context, image []byte, prompt string) (*AnalyzeImageResponse, error)
}

var _ API = &Client{}

type Client struct {
	requester authclient.Requester
}

type Sound struct {
	Filename  string `json:"filename"`
	Prompt    string `json:"prompt"`
	CreatedAt string `json:"created_at"`
}

// Created parses CreatedAt, which the API sends without a zone.
func (s Sound) Created() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		t, err := time.Parse(layout, s.CreatedAt)
		if err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

type SoundList struct {
	Sounds []Sound `json:"sounds"`
}

type GenerateRequest struct {
	Prompt     string `json:"prompt"`
	Filename   string `json:"filename"`
	NumOfSteps int    `json:"num_of_steps"`
	Duration   int    `json:"duration"`
}

func (r GenerateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prompt, validation.Required.Error("prompt is required"), validation.By(notBlank("prompt"))),
		validation.Field(&r.Filename, validation.Required.Error("filename is required"), validation.By(notBlank("filename"))),
		validation.Field(&r.NumOfSteps, validation.Required, validation.Min(1)),
		validation.Field(&r.Duration, validation.Required, validation.Min(1)),
	)
}

func notBlank(name string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}

		return nil
	}
}

// NewGenerateRequest fills in the default number of steps and duration.
func NewGenerateRequest(prompt, filename string) GenerateRequest {
	return GenerateRequest{
		Prompt:     prompt,
		Filename:   filename,
		NumOfSteps: DefaultNumOfSteps,
		Duration:   DefaultDuration,
	}
}

type GenerateResponse struct {
	Filename string `json:"filename"`
	Message  string `json:"message,omitempty"`
}

type AnalyzeImageRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type AnalyzeImageResponse struct {
	Message string `json:"message"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Message)
}

func (c *Client) ListSounds(ctx context.Context) ([]Sound, error) {
	const op errs.Op = "sound.ListSounds"

	list := &SoundList{}

	err := c.sendRequestAndDeserialize(ctx, http.MethodGet, PathMySounds, nil, list)
	if err != nil {
		return nil, errs.E(op, err)
	}

	for _, s := range list.Sounds {
		if s.Filename == "" {
			return nil, errs.E(errs.Invalid, op, errs.Str("sound without filename in listing"))
		}
	}

	return list.Sounds, nil
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	const op errs.Op = "sound.Generate"

	err := req.Validate()
	if err != nil {
		return nil, errs.E(errs.Validation, op, err)
	}

	res := &GenerateResponse{}

	err = c.sendRequestAndDeserialize(ctx, http.MethodPost, PathGenerate, req, res)
	if err != nil {
		return nil, errs.E(op, err)
	}

	if res.Filename == "" {
		return nil, errs.E(errs.Invalid, op, errs.Str("generate response without filename"))
	}

	return res, nil
}

func (c *Client) Audio(ctx context.Context, filename string) ([]byte, error) {
	const op errs.Op = "sound.Audio"

	if strings.TrimSpace(filename) == "" {
		return nil, errs.E(errs.Validation, op, errs.Parameter("filename"), errs.Str("filename is required"))
	}

	res, err := c.requester.Request(ctx, PathAudio+url.PathEscape(filename), authclient.Options{
		Header: http.Header{"Accept": []string{"audio/wav"}},
	})
	if err != nil {
		return nil, errs.E(op, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errs.E(kindFor(res.StatusCode), op, apiError(res))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errs.E(errs.IO, op, fmt.Errorf("reading audio: %w", err))
	}

	return data, nil
}

func (c *Client) AnalyzeImage(ctx context.Context, image []byte, prompt string) (*AnalyzeImageResponse, error) {
	const op errs.Op = "sound.AnalyzeImage"

	if len(image) == 0 {
		return nil, errs.E(errs.Validation, op, errs.Parameter("image"), errs.Str("image is required"))
	}

	req := AnalyzeImageRequest{
		Image:  DataURL(image),
		Prompt: prompt,
	}

	res := &AnalyzeImageResponse{}

	err := c.sendRequestAndDeserialize(ctx, http.MethodPost, PathAnalyzeImage, req, res)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return res, nil
}

// DataURL encodes an image the way a browser file reader does.
func DataURL(image []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))
}

// DisplayName is the filename without its audio extension.
func DisplayName(filename string) string {
	return strings.TrimSuffix(filename, audioExtension)
}

func (c *Client) sendRequestAndDeserialize(ctx context.Context, method, path string, body, into any) error {
	opts := authclient.Options{
		Method: method,
		Header: http.Header{"Accept": []string{"application/json"}},
	}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errs.E(errs.Internal, fmt.Errorf("marshalling body: %w", err))
		}

		opts.Body = data
		opts.Header.Set("Content-Type", "application/json")
	}

	res, err := c.requester.Request(ctx, path, opts)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errs.E(kindFor(res.StatusCode), apiError(res))
	}

	err = json.NewDecoder(res.Body).Decode(into)
	if err != nil {
		return errs.E(errs.IO, fmt.Errorf("decoding response: %w", err))
	}

	return nil
}

func apiError(res *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	apiErr := &APIError{
		StatusCode: res.StatusCode,
		Message:    http.StatusText(res.StatusCode),
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"msg"`
	}

	if json.NewDecoder(bytes.NewReader(data)).Decode(&body) == nil {
		switch {
		case body.Error != "":
			apiErr.Message = body.Error
		case body.Message != "":
			apiErr.Message = body.Message
		}
	}

	return apiErr
}

func kindFor(statusCode int) errs.Kind {
	switch {
	case statusCode == http.StatusNotFound:
		return errs.NotExist
	case statusCode == http.StatusUnauthorized:
		return errs.Unauthenticated
	case statusCode == http.StatusForbidden:
		return errs.Unauthorized
	case statusCode >= 400 && statusCode < 500:
		return errs.InvalidRequest
	default:
		return errs.IO
	}
}

func New(requester authclient.Requester) *Client {
	return &Client{
		requester: requester,
	}
}
