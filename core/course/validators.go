package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
)

var (
	kindContentTag = "kindcontent"

	urlRequiredText  = "this field is required for this kind of material"
	bodyRequiredText = "this field is required for text materials"
	bodyRequiredTag  = "textbody"
)

// InitValidators registers the course validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(materialStructValidation, NewMaterial{})
	core.RegisterCustomTranslation(validate, translator, kindContentTag, urlRequiredText)
	core.RegisterCustomTranslation(validate, translator, bodyRequiredTag, bodyRequiredText)
}

// materialStructValidation checks that link-like materials carry a URL and text materials a body.
func materialStructValidation(sl validator.StructLevel) {
	nm, ok := sl.Current().Interface().(NewMaterial)
	if !ok {
		return
	}
	switch nm.Kind {
	case KindText:
		if core.CleanString(nm.Body) == "" {
			sl.ReportError(nm.Body, "body", "Body", bodyRequiredTag, "")
		}
	case KindPDF, KindVideo, KindLink:
		if nm.URL == "" {
			sl.ReportError(nm.URL, "url", "URL", kindContentTag, "")
		}
	}
}
