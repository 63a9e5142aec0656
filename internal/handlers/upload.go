package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"dealer-studio-backend/internal/models"
	"dealer-studio-backend/internal/store"
)

const (
	sourceCamera = "camera"
	sourceUpload = "upload"
)

var imageFieldNames = []string{"images", "images[]", "image", "files", "file", "photos", "photo"}

type UploadHandler struct {
	store        *store.Store
	maxFileBytes int64
}

func NewUploadHandler(st *store.Store, maxFileBytes int64) *UploadHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = 32 << 20
	}
	return &UploadHandler{
		store:        st,
		maxFileBytes: maxFileBytes,
	}
}

// Upload godoc
// @Summary     Add photos to an order
// @Description Appends one pending job per image, in the order the files are sent.
// @Description
// @Description **Camera capture** (source=camera): every file needs an angle in `angles`.
// @Description Tagged jobs skip classification.
// @Description
// @Description **Upload** (source=upload, default): `angles` is optional. Files without
// @Description an angle are classified when the batch runs.
// @Tags        jobs
// @Accept      multipart/form-data
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Param       images formData file true "Photos (multiple files allowed)"
// @Param       source formData string false "camera or upload"
// @Param       angles formData string false "Comma-separated camera angle per file, e.g. front,rear,interior"
// @Success     201 {object} models.UploadResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /orders/{order_id}/jobs [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	orderID := c.Param("order_id")
	if _, err := h.store.GetOrder(orderID); err != nil {
		writeStoreError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "failed to parse multipart form",
			Message: err.Error(),
		})
		return
	}

	files := formFiles(form, imageFieldNames)
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "no files uploaded",
			Message: fmt.Sprintf("please provide files with one of these field names: %v", imageFieldNames),
		})
		return
	}

	source := strings.ToLower(strings.TrimSpace(c.PostForm("source")))
	if source == "" {
		source = sourceUpload
	}
	if source != sourceCamera && source != sourceUpload {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid source", Message: "source must be camera or upload"})
		return
	}

	angles, err := parseAngles(c.PostForm("angles"), len(files), source == sourceCamera)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid angles", Message: err.Error()})
		return
	}

	jobs := make([]store.NewJob, 0, len(files))
	for i, fh := range files {
		img, err := readImage(fh, h.maxFileBytes)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid image",
				Message: fmt.Sprintf("%s: %v", fh.Filename, err),
			})
			return
		}
		jobs = append(jobs, store.NewJob{Image: img, Angle: angles[i]})
	}

	added, err := h.store.AttachJobs(orderID, jobs)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	resp := models.UploadResponse{OrderID: orderID, Jobs: make([]models.JobResponse, 0, len(added))}
	for _, job := range added {
		resp.Jobs = append(resp.Jobs, toJobResponse(job))
	}
	c.JSON(http.StatusCreated, resp)
}

// Retry godoc
// @Summary     Retry a failed job
// @Description Queues the failed job's photo again as a new pending job. Run the batch to process it.
// @Tags        jobs
// @Produce     json
// @Param       order_id path string true "Order ID"
// @Param       job_id path string true "Failed job ID"
// @Success     201 {object} models.JobResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{order_id}/jobs/{job_id}/retry [post]
func (h *UploadHandler) Retry(c *gin.Context) {
	job, err := h.store.ResubmitJob(c.Param("order_id"), c.Param("job_id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toJobResponse(job))
}

func formFiles(form *multipart.Form, names []string) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	for _, name := range names {
		if f := form.File[name]; len(f) > 0 {
			return f
		}
	}
	return nil
}

// parseAngles splits the comma list into one angle per file. Empty entries
// leave the file untagged unless every file must be tagged.
func parseAngles(raw string, count int, required bool) ([]models.CameraAngle, error) {
	out := make([]models.CameraAngle, count)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return nil, fmt.Errorf("camera uploads need one angle per file")
		}
		return out, nil
	}

	parts := strings.Split(raw, ",")
	if len(parts) != count {
		return nil, fmt.Errorf("got %d angles for %d files", len(parts), count)
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			if required {
				return nil, fmt.Errorf("file %d has no angle", i+1)
			}
			continue
		}
		angle, ok := models.ParseCameraAngle(p)
		if !ok {
			return nil, fmt.Errorf("unknown angle %q", p)
		}
		out[i] = angle
	}
	return out, nil
}

func readImage(fh *multipart.FileHeader, maxBytes int64) (models.Image, error) {
	if fh.Size > maxBytes {
		return models.Image{}, fmt.Errorf("file is larger than %d bytes", maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return models.Image{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return models.Image{}, err
	}
	if int64(len(data)) > maxBytes {
		return models.Image{}, fmt.Errorf("file is larger than %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return models.Image{}, fmt.Errorf("file is empty")
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return models.Image{}, fmt.Errorf("unsupported content type %s", mtype.String())
	}
	return models.Image{MimeType: mtype.String(), Data: data}, nil
}
