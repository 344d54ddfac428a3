package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gagyebu/internal/core"
)

const (
	filesField      = "files"
	multipartMemory = 8 << 20
	maxJSONBytes    = 64 << 10
)

var (
	errBadRequest = errors.New("bad request")
	errNoImages   = errors.New("no image files in request")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// parseFiles reads every part named "files" from a multipart body. A request
// without a multipart body yields no files.
func parseFiles(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]core.ReceiptFile, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, badRequest("invalid multipart body: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[filesField]
	files := make([]core.ReceiptFile, 0, len(headers))
	for _, fh := range headers {
		f, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) (core.ReceiptFile, error) {
	src, err := fh.Open()
	if err != nil {
		return core.ReceiptFile{}, badRequest("open %s: %v", fh.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return core.ReceiptFile{}, badRequest("read %s: %v", fh.Filename, err)
	}
	return core.ReceiptFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// imagesOnly drops every file that is not an image.
func imagesOnly(files []core.ReceiptFile) []core.ReceiptFile {
	out := files[:0:0]
	for _, f := range files {
		if f.IsImage() {
			out = append(out, f)
		}
	}
	return out
}

// pathIndex parses a non-negative {index} path value.
func pathIndex(r *http.Request) (int, error) {
	raw := r.PathValue("index")
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		return 0, badRequest("invalid index %q", raw)
	}
	return i, nil
}

// decodeJSON reads a small JSON body into v. An empty body leaves v untouched
// and reports false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) (bool, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return false, err
		}
		return false, badRequest("invalid JSON body: %v", err)
	}
	return true, nil
}

// parseYearMonth reads year and month from the query, defaulting to the
// current month. Malformed values are rejected rather than defaulted.
func parseYearMonth(r *http.Request, now time.Time) (year, month int, err error) {
	year, month = now.Year(), int(now.Month())
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return 0, 0, badRequest("invalid year %q", v)
		}
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			return 0, 0, badRequest("invalid month %q", v)
		}
	}
	return year, month, nil
}
