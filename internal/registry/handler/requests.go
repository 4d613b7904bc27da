package handler

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"genmark/internal/domain"
	"genmark/internal/registry"
	dErrors "genmark/pkg/domain-errors"
	"genmark/pkg/platform/httputil"
)

// registerRequest is the JSON body for /api/register. Multipart uploads carry
// the same fields as form values plus an "image" file part.
type registerRequest struct {
	ContentB64    string `json:"content_b64,omitempty"`
	Phash         string `json:"phash,omitempty"`
	CreatorID     string `json:"creator_id"`
	ContributorID string `json:"contributor_id"`
	Platform      string `json:"platform,omitempty"`
	ParentPhash   string `json:"parent_phash,omitempty"`
}

// verifyRequest is the JSON body for /api/verify.
type verifyRequest struct {
	ContentB64 string `json:"content_b64,omitempty"`
	Phash      string `json:"phash,omitempty"`
}

// flagRequest is the JSON body for /api/flag.
type flagRequest struct {
	Phash       string `json:"phash"`
	Description string `json:"description"`
	ReporterID  string `json:"reporter_id"`
}

func parseRegisterRequest(r *http.Request) (registry.RegisterRequest, error) {
	var (
		body    registerRequest
		content []byte
	)

	if isMultipart(r) {
		var err error
		if content, err = readImagePart(r); err != nil {
			return registry.RegisterRequest{}, err
		}
		body = registerRequest{
			Phash:         r.FormValue("phash"),
			CreatorID:     r.FormValue("creator_id"),
			ContributorID: r.FormValue("contributor_id"),
			Platform:      r.FormValue("platform"),
			ParentPhash:   r.FormValue("parent_phash"),
		}
	} else {
		var err error
		if body, err = httputil.Decode[registerRequest](r); err != nil {
			return registry.RegisterRequest{}, err
		}
		if content, err = decodeContent(body.ContentB64); err != nil {
			return registry.RegisterRequest{}, err
		}
	}

	fp, err := resolveFingerprint(content, body.Phash)
	if err != nil {
		return registry.RegisterRequest{}, err
	}

	req := registry.RegisterRequest{
		Fingerprint:   fp,
		CreatorID:     strings.TrimSpace(body.CreatorID),
		ContributorID: strings.TrimSpace(body.ContributorID),
		Platform:      strings.TrimSpace(body.Platform),
	}
	if body.ParentPhash != "" {
		parent, perr := domain.ParseFingerprint(body.ParentPhash)
		if perr != nil {
			return registry.RegisterRequest{}, dErrors.Wrap(perr, dErrors.CodeValidation, "invalid parent_phash")
		}
		req.Parent = &parent
	}
	return req, nil
}

func parseFingerprintRequest(r *http.Request) (domain.Fingerprint, error) {
	if isMultipart(r) {
		content, err := readImagePart(r)
		if err != nil {
			return 0, err
		}
		return resolveFingerprint(content, r.FormValue("phash"))
	}

	body, err := httputil.Decode[verifyRequest](r)
	if err != nil {
		return 0, err
	}
	content, err := decodeContent(body.ContentB64)
	if err != nil {
		return 0, err
	}
	return resolveFingerprint(content, body.Phash)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func readImagePart(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid image part")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read image")
	}
	if len(content) > maxUploadBytes {
		return nil, dErrors.New(dErrors.CodeBadRequest, "image exceeds the upload limit")
	}
	return content, nil
}

func decodeContent(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, nil
	}
	content, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "content_b64 is not valid base64")
	}
	return content, nil
}
