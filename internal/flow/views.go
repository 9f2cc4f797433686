package flow

// ErrorItem is one entry of an error summary: the message and an anchor to
// the offending field.
type ErrorItem struct {
	Text string
	Href string
}

// FormError is the inline error shown when a step fails validation.
type FormError struct {
	Summary []ErrorItem
	Message string
}

func fieldError(field, message string) *FormError {
	return &FormError{
		Summary: []ErrorItem{{Text: message, Href: "#" + field}},
		Message: message,
	}
}

// NameView is the payload of the name step.
type NameView struct {
	Name  string // raw submitted value, echoed on error
	Error *FormError
}

// AgeOption is one selectable age range.
type AgeOption struct {
	Value string
	Text  string
}

// AgeOptions are the ranges offered on the age step. Submissions are not
// restricted to these values.
var AgeOptions = []AgeOption{
	{Value: "under-18", Text: "Under 18"},
	{Value: "18-24", Text: "18 to 24"},
	{Value: "25-34", Text: "25 to 34"},
	{Value: "35-44", Text: "35 to 44"},
	{Value: "45-54", Text: "45 to 54"},
	{Value: "55-64", Text: "55 to 64"},
	{Value: "65-plus", Text: "65 or over"},
}

// AgeView is the payload of the age step.
type AgeView struct {
	ID      string
	Options []AgeOption
	Error   *FormError
}

// ResultView is the payload of the summary page. Age may be empty.
type ResultView struct {
	Name string
	Age  string
}
