package prompt

// DefaultLanguage is used for unknown or empty language labels.
const DefaultLanguage = "English"

type languageEntry struct {
	label       string
	instruction string
}

// languageTable is the closed set of supported response languages.
var languageTable = []languageEntry{
	{"English", "Respond in English."},
	{"Hindi", "कृपया हिंदी में जवाब दें। Use Hindi script (Devanagari) for your response."},
	{"Telugu", "దయచేసి తెలుగులో సమాధానం ఇవ్వండి। Use Telugu script for your response."},
	{"Tamil", "தயவுசெய்து தமிழில் பதிலளிக்கவும். Use Tamil script for your response."},
	{"Kannada", "ದಯವಿಟ್ಟು ಕನ್ನಡದಲ್ಲಿ ಉತ್ತರಿಸಿ. Use Kannada script for your response."},
	{"Malayalam", "ദയവായി മലയാളത്തിൽ ഉത്തരം നൽകുക. Use Malayalam script for your response."},
	{"Marathi", "कृपया मराठीत उत्तर द्या. Use Marathi script for your response."},
	{"Bengali", "অনুগ্রহ করে বাংলায় উত্তর দিন. Use Bengali script for your response."},
	{"Gujarati", "કૃપા કરીને ગુજરાતીમાં જવાબ આપો. Use Gujarati script for your response."},
}

// LanguageInstruction returns the directive for label, falling back to the
// default language for unknown labels.
func LanguageInstruction(label string) string {
	for _, e := range languageTable {
		if e.label == label {
			return e.instruction
		}
	}
	return languageTable[0].instruction
}

// SupportedLanguages lists the language labels in display order.
func SupportedLanguages() []string {
	out := make([]string, len(languageTable))
	for i, e := range languageTable {
		out[i] = e.label
	}
	return out
}

// IsSupported reports whether label is in the closed language set.
func IsSupported(label string) bool {
	for _, e := range languageTable {
		if e.label == label {
			return true
		}
	}
	return false
}

// Normalize maps empty or unknown labels to the default language.
func Normalize(label string) string {
	if IsSupported(label) {
		return label
	}
	return DefaultLanguage
}
