// internal/nutrition/multipart.go
package nutrition

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"mcp-plate-log/internal/models"
)

const (
	imageField    = "image"
	weightsField  = "weights"
	imageFilename = "meal.jpg"
)

// FormatWeights renders weights the way the analyzer expects them: a flat
// comma separated list, each value with at least one fractional digit.
//
//	[100, 50.5, 75.25, 10] -> "100.0,50.5,75.25,10.0"
func FormatWeights(weights []float64) string {
	parts := make([]string, len(weights))
	for i, w := range weights {
		s := strconv.FormatFloat(w, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		parts[i] = s
	}
	return strings.Join(parts, ",")
}

// newBoundary picks a random boundary that does not occur in the image.
func newBoundary(image []byte) string {
	for {
		b := uuid.NewString()
		if !bytes.Contains(image, []byte(b)) {
			return b
		}
	}
}

// encodeUpload builds the two-part body: the JPEG first, then the weights.
// It returns the body and the matching Content-Type header value.
func encodeUpload(req *models.UploadRequest) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.SetBoundary(newBoundary(req.Image)); err != nil {
		return nil, "", fmt.Errorf("failed to set boundary: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, imageField, imageFilename))
	header.Set("Content-Type", models.ImageContentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}

	if err := writer.WriteField(weightsField, FormatWeights(req.Weights)); err != nil {
		return nil, "", fmt.Errorf("failed to write weights part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}
