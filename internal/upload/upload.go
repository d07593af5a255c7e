package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"qbadmin/internal/backend"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

var ErrNoURL = errors.New("upload returned no url")

// Cloudinary stores statement images in a Cloudinary folder.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cloudinaryURL, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(strings.TrimSpace(cloudinaryURL))
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	folder = strings.TrimSpace(folder)
	if folder == "" {
		folder = "banco_preguntas"
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	params := uploader.UploadParams{
		Folder:    c.folder,
		PublicID:  publicID(filename),
		Overwrite: api.Bool(false),
	}

	res, err := c.cld.Upload.Upload(ctx, r, params)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res == nil {
		return "", ErrNoURL
	}
	if msg := strings.TrimSpace(res.Error.Message); msg != "" {
		return "", fmt.Errorf("cloudinary upload: %s", msg)
	}
	if res.SecureURL == "" {
		return "", ErrNoURL
	}
	return res.SecureURL, nil
}

// ContentAPI posts images to the content API's own upload endpoint.
type ContentAPI struct {
	api *backend.Client
}

func NewContentAPI(api *backend.Client) *ContentAPI {
	return &ContentAPI{api: api}
}

func (u *ContentAPI) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := u.api.PostFile(ctx, "/upload", "file", filepath.Base(filename), r, &out); err != nil {
		return "", fmt.Errorf("content api upload: %w", err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", ErrNoURL
	}
	return strings.TrimSpace(out.URL), nil
}

// publicID keeps the original file stem readable and suffixes it so two
// uploads of "figura.png" never collide.
func publicID(filename string) string {
	suffix := uuid.NewString()[:8]
	base := filepath.Base(strings.TrimSpace(filename))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, stem)
	if stem == "" {
		return suffix
	}
	return stem + "_" + suffix
}
