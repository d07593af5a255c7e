package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

var (
	ErrUploadFailed   = errors.New("image upload failed")
	ErrEmptyUploadURL = errors.New("upload returned empty url")
)

// Block is one ordered fragment of a statement. Content holds rich text markup
// for text blocks and the image URL for image blocks.
type Block struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

// Uploader stores a binary asset and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Statement is the editable block list of either the common statement or one
// sub-question's specific statement.
type Statement struct {
	Blocks []Block `json:"blocks"`
}

func ValidKind(k Kind) bool {
	return k == KindText || k == KindImage
}

func newBlock(kind Kind, content string) Block {
	return Block{ID: uuid.NewString(), Kind: kind, Content: content}
}

// AddBlock appends an empty block. Image blocks are filled by the upload flow.
func (s *Statement) AddBlock(kind Kind) Block {
	b := newBlock(kind, "")
	s.Blocks = append(s.Blocks, b)
	return b
}

// UpdateBlock replaces the content of one block. Unknown ids are ignored.
func (s *Statement) UpdateBlock(blockID, content string) bool {
	for i := range s.Blocks {
		if s.Blocks[i].ID == blockID {
			s.Blocks[i].Content = content
			return true
		}
	}
	return false
}

func (s *Statement) RemoveBlock(blockID string) bool {
	for i := range s.Blocks {
		if s.Blocks[i].ID == blockID {
			s.Blocks = append(s.Blocks[:i], s.Blocks[i+1:]...)
			return true
		}
	}
	return false
}

// UploadImage stores one image and returns its URL. Every failure wraps
// ErrUploadFailed.
func UploadImage(ctx context.Context, up Uploader, filename string, r io.Reader) (string, error) {
	if up == nil {
		return "", fmt.Errorf("%w: upload service not configured", ErrUploadFailed)
	}
	url, err := up.Upload(ctx, filename, r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, ErrEmptyUploadURL)
	}
	return url, nil
}

// AppendImage appends an image block pointing at url.
func (s *Statement) AppendImage(url string) Block {
	b := newBlock(KindImage, url)
	s.Blocks = append(s.Blocks, b)
	return b
}

// UploadAndAppendImage uploads the file and appends an image block pointing at
// the returned URL. Nothing is appended when the upload fails.
func (s *Statement) UploadAndAppendImage(ctx context.Context, up Uploader, filename string, r io.Reader) (Block, error) {
	url, err := UploadImage(ctx, up, filename, r)
	if err != nil {
		return Block{}, err
	}
	return s.AppendImage(url), nil
}

func (s *Statement) Empty() bool {
	return len(s.Blocks) == 0
}

func (s Statement) Clone() Statement {
	if s.Blocks == nil {
		return Statement{}
	}
	out := make([]Block, len(s.Blocks))
	copy(out, s.Blocks)
	return Statement{Blocks: out}
}
