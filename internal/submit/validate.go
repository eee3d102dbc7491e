// Package submit validates the generation form and drives one submission at
// a time against the generation service.
package submit

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/h2non/filetype"

	"github.com/satindergrewal/orchestrify/internal/backend"
)

// Form field names, as used in FieldErrors and the multipart request.
const (
	FieldDensity = "density"
	FieldModel   = "model"
	FieldFile    = "file"
)

// DefaultMaxBytes is the source file ceiling (50 kB).
const DefaultMaxBytes = 50 * 1024

// Extensions accepted for the source file.
var Extensions = []string{".mid", ".midi"}

// Upload is a file chosen by the user. Size is the size reported by the
// browser, which may exceed len(Data) when the body was truncated on read.
type Upload struct {
	Name string
	Size int64
	Data []byte
}

// Limits bounds the source file.
type Limits struct {
	MaxBytes int64
}

// Draft is the raw form state as the user typed it.
type Draft struct {
	Density string
	ModelID string
	File    *Upload
}

// Request is a fully validated generation request.
type Request struct {
	Density  float64
	ModelID  string
	FileName string
	File     []byte
}

// Form converts the request into the service's multipart fields.
func (r *Request) Form() backend.GenerateForm {
	return backend.GenerateForm{
		Model:    r.ModelID,
		Density:  strconv.FormatFloat(r.Density, 'f', -1, 64),
		FileName: r.FileName,
		File:     r.File,
	}
}

// ModelSet reports which model ids are selectable.
type ModelSet interface {
	Contains(id string) bool
}

// FieldErrors maps a field name to its message. A nil map means valid.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// fields carries the declarative constraints checked by validator.
type fields struct {
	Density  *float64 `validate:"required,gte=0,lte=1"`
	ModelID  string   `validate:"required"`
	FileName string   `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var messages = map[string]map[string]string{
	"Density": {
		"required": "Density is required",
		"gte":      "Density must be at least 0",
		"lte":      "Density must not exceed 1",
	},
	"ModelID":  {"required": "Model selection is required"},
	"FileName": {"required": "File is required"},
}

var fieldKeys = map[string]string{
	"Density":  FieldDensity,
	"ModelID":  FieldModel,
	"FileName": FieldFile,
}

// Validate checks draft and builds a Request. It returns either a request or
// the errors, never both.
func Validate(d Draft, models ModelSet, lim Limits) (*Request, FieldErrors) {
	errs := FieldErrors{}
	in := fields{ModelID: strings.TrimSpace(d.ModelID)}

	if s := strings.TrimSpace(d.Density); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errs[FieldDensity] = "Density must be a number"
		} else {
			in.Density = &v
		}
	}
	if d.File != nil {
		in.FileName = d.File.Name
	}

	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs[FieldDensity] = err.Error()
		}
		for _, fe := range verrs {
			key := fieldKeys[fe.Field()]
			if _, set := errs[key]; set {
				continue
			}
			msg, ok := messages[fe.Field()][fe.Tag()]
			if !ok {
				msg = fmt.Sprintf("%s is invalid", fe.Field())
			}
			errs[key] = msg
		}
	}

	if _, set := errs[FieldModel]; !set && models != nil && !models.Contains(in.ModelID) {
		errs[FieldModel] = "Selected model is not available"
	}
	if _, set := errs[FieldFile]; !set && d.File != nil {
		if msg := checkFile(d.File, lim); msg != "" {
			errs[FieldFile] = msg
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &Request{
		Density:  *in.Density,
		ModelID:  in.ModelID,
		FileName: d.File.Name,
		File:     d.File.Data,
	}, nil
}

func checkFile(u *Upload, lim Limits) string {
	limit := lim.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	size := u.Size
	if n := int64(len(u.Data)); n > size {
		size = n
	}
	if size > limit {
		return fmt.Sprintf("File size is too large, maximum size is %d kB", limit/1024)
	}
	if !hasExtension(u.Name) || !filetype.Is(u.Data, "mid") {
		return "File must be a MIDI file (.mid, .midi)"
	}
	return ""
}

func hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
