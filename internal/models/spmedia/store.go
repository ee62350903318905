package spmedia

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sparsh/internal/models/sperr"
	"sparsh/internal/models/splog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"
)

const (
	MaxUploadSize = 10 << 20
	sniffLen      = 512
)

var (
	ErrTooLarge        = sperr.Invalid("image too large (max 10MB)")
	ErrUnsupportedType = sperr.Invalid("only jpeg, jpg, png, gif and webp images are allowed")
	ErrInvalidImage    = sperr.Invalid("image could not be decoded")
	ErrMissingFile     = sperr.Invalid("image file is required")
)

// extensions autorisées et type détecté attendu
var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var sniffedExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Meta : informations stockées avec chaque image
type Meta struct {
	Size   int64  `json:"size"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Upload est un fichier reçu par formulaire multipart
type Upload struct {
	Reader   io.Reader
	Filename string
	Size     int64
}

type Saved struct {
	Name string
	URL  string
	Meta Meta
}

// StoredFile est une entrée du dossier de stockage
type StoredFile struct {
	Name    string
	ModTime time.Time
}

// Store écrit les images sous un nom unique dans un dossier servi en statique
type Store struct {
	dir       string
	urlPrefix string
	maxSize   int64
	logger    zerolog.Logger
}

func NewStore(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("création dossier %s: %w", dir, err)
	}
	return &Store{
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxSize:   MaxUploadSize,
		logger:    splog.For("storage"),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) URL(name string) string {
	return s.urlPrefix + "/" + name
}

// NameFromURL retrouve le nom de fichier à partir d'une URL publique
func (s *Store) NameFromURL(u string) string {
	if u == "" {
		return ""
	}
	return path.Base(u)
}

func (s *Store) Save(up Upload) (*Saved, error) {
	return s.save(up, 0)
}

// SaveResized réduit les jpeg/png plus larges que maxWidth
func (s *Store) SaveResized(up Upload, maxWidth int) (*Saved, error) {
	return s.save(up, maxWidth)
}

func (s *Store) save(up Upload, maxWidth int) (*Saved, error) {
	if up.Reader == nil {
		return nil, ErrMissingFile
	}
	if up.Size > s.maxSize {
		return nil, ErrTooLarge
	}
	if !allowedExt[strings.ToLower(filepath.Ext(up.Filename))] {
		return nil, ErrUnsupportedType
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(up.Reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("lecture fichier: %w", err)
	}
	if n == 0 {
		return nil, ErrMissingFile
	}
	head = head[:n]

	ext, ok := sniffedExt[http.DetectContentType(head)]
	if !ok {
		return nil, ErrUnsupportedType
	}

	name := uuid.NewString() + ext
	dst := filepath.Join(s.dir, name)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("création fichier: %w", err)
	}

	// on lit au plus maxSize+1 octets pour détecter un en-tête de taille mensonger
	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(up.Reader, s.maxSize+1-int64(n)))
	written, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		s.discard(name)
		return nil, err
	}

	meta, err := inspect(dst)
	if err != nil {
		s.discard(name)
		return nil, err
	}

	if maxWidth > 0 && meta.Width > maxWidth && (meta.Format == "jpeg" || meta.Format == "png") {
		if meta, err = shrink(dst, meta.Format, maxWidth); err != nil {
			s.discard(name)
			return nil, err
		}
	}
	meta.Size = fileSize(dst, written)

	return &Saved{Name: name, URL: s.URL(name), Meta: meta}, nil
}

// Remove ignore un fichier déjà absent
func (s *Store) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("nom de fichier invalide %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

func (s *Store) List() ([]StoredFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	files := make([]StoredFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, StoredFile{Name: e.Name(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *Store) discard(name string) {
	if err := s.Remove(name); err != nil {
		s.logger.Error().Err(err).Str("file", name).Msg("failed to remove rejected upload")
	}
}

func inspect(p string) (Meta, error) {
	f, err := os.Open(p)
	if err != nil {
		return Meta{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return Meta{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// shrink réencode l'image en place après redimensionnement
func shrink(p, format string, maxWidth int) (Meta, error) {
	f, err := os.Open(p)
	if err != nil {
		return Meta{}, err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	resized := Resize(img, maxWidth)

	tmp := p + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return Meta{}, err
	}
	if format == "png" {
		err = png.Encode(out, resized)
	} else {
		err = jpeg.Encode(out, resized, &jpeg.Options{Quality: 85})
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return Meta{}, err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return Meta{}, err
	}

	b := resized.Bounds()
	return Meta{Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

func fileSize(p string, fallback int64) int64 {
	info, err := os.Stat(p)
	if err != nil {
		return fallback
	}
	return info.Size()
}
