package assessment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/saidstrong/nuet-prep-academy-sub001/core"
)

var (
	minOptionsTag  = "minoptions"
	minOptionsText = "choice questions need at least 2 options"

	noOptionsTag  = "nooptions"
	noOptionsText = "short answer questions cannot have options"

	trueFalseTag  = "truefalse"
	trueFalseText = "true/false questions have exactly 2 options"

	oneChoiceTag  = "onechoice"
	oneChoiceText = "exactly one correct choice is required"

	someChoicesTag  = "somechoices"
	someChoicesText = "at least one correct choice is required"

	choiceRangeTag  = "choicerange"
	choiceRangeText = "correct choices must reference existing options"

	acceptedTag  = "accepted"
	acceptedText = "at least one accepted answer is required"
)

// InitValidators registers the assessment validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(questionStructValidation, NewQuestion{})
	core.RegisterCustomTranslation(validate, translator, minOptionsTag, minOptionsText)
	core.RegisterCustomTranslation(validate, translator, noOptionsTag, noOptionsText)
	core.RegisterCustomTranslation(validate, translator, trueFalseTag, trueFalseText)
	core.RegisterCustomTranslation(validate, translator, oneChoiceTag, oneChoiceText)
	core.RegisterCustomTranslation(validate, translator, someChoicesTag, someChoicesText)
	core.RegisterCustomTranslation(validate, translator, choiceRangeTag, choiceRangeText)
	core.RegisterCustomTranslation(validate, translator, acceptedTag, acceptedText)
}

// questionStructValidation checks the answer key of a question against its kind.
func questionStructValidation(sl validator.StructLevel) {
	nq, ok := sl.Current().Interface().(NewQuestion)
	if !ok {
		return
	}
	if tag := checkAnswerKey(nq); tag != "" {
		switch tag {
		case minOptionsTag, noOptionsTag, trueFalseTag:
			sl.ReportError(nq.Options, "options", "Options", tag, "")
		case acceptedTag:
			sl.ReportError(nq.AcceptedAnswers, "accepted_answers", "AcceptedAnswers", tag, "")
		default:
			sl.ReportError(nq.CorrectChoices, "correct_choices", "CorrectChoices", tag, "")
		}
	}
}

// checkAnswerKey returns the tag of the first rule nq breaks, if any.
func checkAnswerKey(nq NewQuestion) string {
	inRange := func() bool {
		for _, c := range nq.CorrectChoices {
			if c < 0 || c >= len(nq.Options) {
				return false
			}
		}
		return true
	}

	switch nq.Kind {
	case KindSingleChoice:
		if len(nq.Options) < 2 {
			return minOptionsTag
		}
		if len(nq.CorrectChoices) != 1 {
			return oneChoiceTag
		}
		if !inRange() {
			return choiceRangeTag
		}
	case KindTrueFalse:
		if len(nq.Options) != 2 {
			return trueFalseTag
		}
		if len(nq.CorrectChoices) != 1 {
			return oneChoiceTag
		}
		if !inRange() {
			return choiceRangeTag
		}
	case KindMultipleChoice:
		if len(nq.Options) < 2 {
			return minOptionsTag
		}
		if len(uniqueSorted(nq.CorrectChoices)) == 0 {
			return someChoicesTag
		}
		if !inRange() {
			return choiceRangeTag
		}
	case KindShortAnswer:
		if len(nq.Options) > 0 {
			return noOptionsTag
		}
		if len(nq.AcceptedAnswers) == 0 {
			return acceptedTag
		}
	}
	return ""
}
