package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/geometry"
	"github.com/astrofix/astrofix/internal/svcctx"
)

// maxImageBytes bounds the uploaded screenshot size.
const maxImageBytes = 32 << 20

// DetectEndpoint handles POST /detect. The response body is the detection
// document itself (geometry.Result wire form), not an envelope.
type DetectEndpoint struct{}

func (e *DetectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/detect", e.handler
}

func (e *DetectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Detect overlapping blocks
//	@Description	Run block detection on an uploaded screenshot and report overlap pairs
//	@Tags			detection
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Page screenshot (PNG)"
//	@Success		200		{object}	geometry.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/detect [post]
func (e *DetectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	det := svcctx.DetectorFrom(r.Context())
	if det == nil {
		writeError(w, http.StatusServiceUnavailable, "detector not initialized")
		return
	}

	result, err := det.Detect(r.Context(), image)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("detection failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readImage accepts either a multipart upload with a "file" field or the
// image as the raw request body.
func readImage(r *http.Request) ([]byte, error) {
	var reader io.Reader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return nil, fmt.Errorf("invalid multipart form")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("missing file field")
		}
		defer file.Close()
		reader = file
	} else {
		reader = r.Body
	}

	image, err := io.ReadAll(io.LimitReader(reader, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image")
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return image, nil
}

func (e *DetectEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <image-file>",
		Short: "Detect overlapping blocks in a screenshot",
		Long: `Upload a page screenshot and report the detected blocks and any
pairs that overlap above the configured IoU threshold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			var resp geometry.Result
			if err := client.PostMultipart(cmd.Context(), "/detect", "file",
				filepath.Base(args[0]), image, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
