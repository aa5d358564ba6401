package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Import for PNG decoding support
	"io"
	"math"
	"net/http"
	"path"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/storage"
	"golang.org/x/image/draw"
)

var ErrNotAnImage = errors.New("evidence is not a jpeg or png image")

// Size window for stored pictures.
const (
	maxEvidenceSize    = 150 * 1024
	targetEvidenceSize = 80 * 1024
)

// Service stores the snapshots terminals attach to access events.
type Service struct {
	storage storage.FileStorage
	zone    businesstime.Zone
}

func NewService(storage storage.FileStorage, zone businesstime.Zone) *Service {
	return &Service{storage: storage, zone: zone}
}

// StoreEvidence compresses the picture to JPEG and stores it under
// attendance/{day}/{personID}-{unix}.jpg.
func (s *Service) StoreEvidence(ctx context.Context, personID string, at time.Time, ev attendance.Evidence) (string, error) {
	switch http.DetectContentType(ev.Data) {
	case "image/jpeg", "image/png":
	default:
		return "", ErrNotAnImage
	}

	compressed, err := compressImage(ev.Data, maxEvidenceSize)
	if err != nil {
		return "", fmt.Errorf("failed to compress evidence: %w", err)
	}

	key := path.Join("attendance", s.zone.Day(at), fmt.Sprintf("%s-%d.jpg", personID, at.Unix()))
	stored, err := s.storage.Upload(ctx, bytes.NewReader(compressed), key, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to upload evidence: %w", err)
	}
	return stored, nil
}

// EvidenceURL returns the public URL of a stored picture.
func (s *Service) EvidenceURL(key string) string {
	return s.storage.URL(key)
}

// Open streams a stored picture.
func (s *Service) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.storage.Download(ctx, key)
}

// compressImage re-encodes an image as JPEG, lowering quality and then
// resolution until it fits under maxSize. JPEGs already small enough are
// kept as they are.
func compressImage(buffer []byte, maxSize int) ([]byte, error) {
	if http.DetectContentType(buffer) == "image/jpeg" && len(buffer) <= maxSize {
		return buffer, nil
	}

	img, _, err := image.Decode(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	var compressed []byte
	for quality := 85; quality >= 50; quality -= 5 {
		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		compressed = buf.Bytes()

		if len(compressed) <= maxSize {
			return compressed, nil
		}
	}

	bounds := img.Bounds()
	ratio := math.Sqrt(float64(targetEvidenceSize) / float64(len(compressed)))
	width := max(int(float64(bounds.Dx())*ratio), 320)
	height := max(int(float64(bounds.Dy())*ratio), 240)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, resizeImage(img, width, height), &jpeg.Options{Quality: 70}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// resizeImage scales with CatmullRom interpolation.
func resizeImage(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
