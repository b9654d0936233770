// Package catalog holds the supported languages and the named voice presets.
package catalog

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// AutoLanguage asks for the language to be detected from the text.
const AutoLanguage = "auto"

// Language describes a supported language code.
type Language struct {
	Code   string `json:"code"`
	NameTR string `json:"name_tr"`
	NameEN string `json:"name_en"`
}

// Preset is a named bundle of generation weight overrides.
type Preset struct {
	Key          string  `json:"key"`
	NameTR       string  `json:"name_tr"`
	Description  string  `json:"description"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
}

var languages = []Language{
	{Code: "tr", NameTR: "Türkçe", NameEN: "Turkish"},
	{Code: "en", NameTR: "İngilizce", NameEN: "English"},
	{Code: "de", NameTR: "Almanca", NameEN: "German"},
	{Code: "fr", NameTR: "Fransızca", NameEN: "French"},
	{Code: "es", NameTR: "İspanyolca", NameEN: "Spanish"},
	{Code: "it", NameTR: "İtalyanca", NameEN: "Italian"},
	{Code: "pt", NameTR: "Portekizce", NameEN: "Portuguese"},
	{Code: "ru", NameTR: "Rusça", NameEN: "Russian"},
	{Code: "zh", NameTR: "Çince", NameEN: "Chinese"},
	{Code: "ja", NameTR: "Japonca", NameEN: "Japanese"},
	{Code: "ko", NameTR: "Korece", NameEN: "Korean"},
	{Code: "ar", NameTR: "Arapça", NameEN: "Arabic"},
}

var presets = []Preset{
	{Key: "default", NameTR: "Varsayılan", Description: "Dengeli, nötr ses", Exaggeration: 0.5, CFGWeight: 0.5},
	{Key: "casual", NameTR: "Günlük Konuşma", Description: "Samimi, doğal konuşma tonu", Exaggeration: 0.6, CFGWeight: 0.6},
	{Key: "news_anchor", NameTR: "Haber Spikeri", Description: "Resmi, net ve anlaşılır", Exaggeration: 0.3, CFGWeight: 0.8},
	{Key: "commercial", NameTR: "Reklam Seslendirme", Description: "Enerjik, vurgulu ve dikkat çekici", Exaggeration: 0.9, CFGWeight: 0.7},
	{Key: "formal", NameTR: "Resmi Duyuru", Description: "Ciddi, profesyonel ton", Exaggeration: 0.2, CFGWeight: 0.9},
	{Key: "podcast", NameTR: "Podcast", Description: "Samimi ve rahat anlatım", Exaggeration: 0.4, CFGWeight: 0.6},
	{Key: "storyteller", NameTR: "Hikaye Anlatıcı", Description: "Canlı ve etkileyici hikaye anlatımı", Exaggeration: 0.8, CFGWeight: 0.5},
	{Key: "kids_story", NameTR: "Çocuk Hikayesi", Description: "Eğlenceli ve enerjik çocuk hikayesi", Exaggeration: 1.0, CFGWeight: 0.5},
	{Key: "poetry", NameTR: "Şiir Okuma", Description: "Duygusal ve akıcı şiir yorumu", Exaggeration: 0.7, CFGWeight: 0.4},
	{Key: "dramatic", NameTR: "Dramatik", Description: "Yoğun duygusal ifade", Exaggeration: 1.2, CFGWeight: 0.4},
	{Key: "excited", NameTR: "Heyecanlı", Description: "Coşkulu ve heyecan dolu", Exaggeration: 1.3, CFGWeight: 0.5},
	{Key: "scared", NameTR: "Korkulu", Description: "Tedirgin ve korku dolu", Exaggeration: 1.1, CFGWeight: 0.3},
	{Key: "sad", NameTR: "Üzgün", Description: "Melankolik ve hüzünlü", Exaggeration: 0.4, CFGWeight: 0.3},
	{Key: "romantic", NameTR: "Romantik", Description: "Yumuşak ve duygusal", Exaggeration: 0.6, CFGWeight: 0.4},
	{Key: "angry", NameTR: "Sinirli", Description: "Öfkeli ve sert", Exaggeration: 1.4, CFGWeight: 0.6},
	{Key: "robot", NameTR: "Robot", Description: "Mekanik, monoton ses", Exaggeration: 0.1, CFGWeight: 0.9},
	{Key: "asmr", NameTR: "ASMR / Fısıltılı", Description: "Yumuşak, sakin fısıltı", Exaggeration: 0.2, CFGWeight: 0.3},
	{Key: "energetic", NameTR: "Enerji Dolu", Description: "Maksimum enerji ve coşku", Exaggeration: 1.5, CFGWeight: 0.5},
}

// Languages returns the supported languages in display order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)

	return out
}

// Presets returns the named presets in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)

	return out
}

// LookupPreset finds a preset by key.
func LookupPreset(key string) (Preset, bool) {
	key = strings.TrimSpace(key)
	for _, preset := range presets {
		if preset.Key == key {
			return preset, true
		}
	}

	return Preset{}, false
}

// IsSupported reports whether code is one of the catalogue's language codes.
func IsSupported(code string) bool {
	for _, lang := range languages {
		if lang.Code == code {
			return true
		}
	}

	return false
}

// ResolveLanguage maps a user-supplied language tag ("EN", "pt-BR", "tr") onto a supported
// code, falling back to fallback when the tag is empty, unparseable or unsupported.
func ResolveLanguage(code, fallback string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return fallback
	}

	tag, err := language.Parse(code)
	if err != nil {
		return fallback
	}

	base, _ := tag.Base()
	if IsSupported(base.String()) {
		return base.String()
	}

	return fallback
}

// DetectLanguage guesses the language of text. It returns fallback when the guess is not
// reliable or not in the catalogue.
func DetectLanguage(text, fallback string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return fallback
	}

	return ResolveLanguage(info.Lang.Iso6391(), fallback)
}
