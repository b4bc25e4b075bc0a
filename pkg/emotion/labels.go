package emotion

// Label is a discrete emotion class inferred from a waveform.
type Label string

// The closed label set. LabelUnknown is never produced by the model itself;
// it is the fallback for any predicted index outside the configured table.
const (
	LabelNeutral   Label = "neutral"
	LabelHappy     Label = "happy"
	LabelSad       Label = "sad"
	LabelAngry     Label = "angry"
	LabelFearful   Label = "fearful"
	LabelDisgust   Label = "disgust"
	LabelSurprised Label = "surprised"
	LabelUnknown   Label = "unknown"
)

// DefaultLabels returns the standard index→label table in model output order.
// Index i of the returned slice corresponds to logit index i.
func DefaultLabels() []Label {
	return []Label{
		LabelNeutral,
		LabelHappy,
		LabelSad,
		LabelAngry,
		LabelFearful,
		LabelDisgust,
		LabelSurprised,
	}
}
