// Package media provides the bounded photo compression pipeline.
package media

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/logging"
)

const (
	// MaxSourceBytes is the largest raw photo accepted for processing.
	MaxSourceBytes = 10 << 20
	// TargetBytes is the encoded size the quality ladder aims for.
	TargetBytes = 2 << 20
	// MaxEdgePx clamps the larger image edge; the other edge scales
	// proportionally.
	MaxEdgePx = 1920

	qualityStart = 80
	qualityFloor = 50
	qualityStep  = 10

	// DefaultTimeout bounds one whole decode+encode sequence.
	DefaultTimeout = 30 * time.Second
)

// Result is a re-encoded photo at or below the target bounds. Quality is
// the JPEG quality the ladder settled on; the floor is a hard stop, so
// Size may exceed TargetBytes when the floor was reached.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Quality int
}

// Compressor re-encodes captured photos within size and dimension bounds.
type Compressor struct {
	Timeout time.Duration
}

// NewCompressor returns a Compressor with the default timeout.
func NewCompressor() *Compressor {
	return &Compressor{Timeout: DefaultTimeout}
}

// Compress decodes src, scales it to the dimension bound and walks the
// quality ladder down to the target size. Every failure mode here (decode
// error, encode error, timeout) is recoverable at the caller's level by
// falling back to the original bytes.
func (c *Compressor) Compress(ctx context.Context, src []byte) (*Result, error) {
	if len(src) > MaxSourceBytes {
		return nil, apperrors.New(apperrors.ErrFileTooLarge, "source image exceeds 10 MiB bound")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	// Decode and encode are not interruptible, so the sequence runs in its
	// own goroutine and the deadline is enforced on the wait.
	go func() {
		res, err := compress(src)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.ErrCompressionTimeout, "compression exceeded time budget", ctx.Err())
	case out := <-done:
		return out.res, out.err
	}
}

func compress(src []byte) (*Result, error) {
	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCompressionFailed, "failed to decode image", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxEdgePx || bounds.Dy() > MaxEdgePx {
		// Fit clamps the larger edge and preserves aspect ratio.
		img = imaging.Fit(img, MaxEdgePx, MaxEdgePx, imaging.Lanczos)
		bounds = img.Bounds()
	}

	var buf bytes.Buffer
	quality := qualityStart
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCompressionFailed, "failed to encode image", err)
		}
		if buf.Len() <= TargetBytes || quality <= qualityFloor {
			break
		}
		quality -= qualityStep
	}

	if buf.Len() > TargetBytes {
		logging.Debug("quality floor reached, accepting best effort",
			map[string]interface{}{"format": format, "bytes": buf.Len(), "quality": quality})
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	return &Result{
		Data:    data,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Quality: quality,
	}, nil
}

// IsImage reports whether data sniffs as a supported image type.
func IsImage(data []byte) bool {
	return strings.HasPrefix(SniffMime(data), "image/")
}

// SniffMime returns the detected content type of data.
func SniffMime(data []byte) string {
	return http.DetectContentType(data)
}
