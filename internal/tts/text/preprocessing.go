// Package text prepares input text for synthesis: spoken-form normalisation and chunk planning.
package text

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// NumberBaseTen represents the base for decimal number system.
	NumberBaseTen = 10
	// NumberBaseHundred represents the base for hundreds.
	NumberBaseHundred = 100
	// NumberBaseThousand represents the base for thousands.
	NumberBaseThousand = 1000
	// MinSpokenYear and MaxSpokenYear bound the four-digit numbers read as years.
	MinSpokenYear = 1900
	MaxSpokenYear = 2100
)

// Regex patterns for Turkish normalisation. Order of application matters: specific formats
// first, bare numbers last.
const (
	percentRegexPattern    = `%(\d+(?:[.,]\d+)?)`
	liraSignRegexPattern   = `(\d+(?:[.,]\d+)?)\s*₺`
	liraCodeRegexPattern   = `(?i)(\d+(?:[.,]\d+)?)\s*TL`
	dollarRegexPattern     = `\$(\d+(?:[.,]\d+)?)`
	euroRegexPattern       = `€(\d+(?:[.,]\d+)?)`
	poundRegexPattern      = `£(\d+(?:[.,]\d+)?)`
	timeRegexPattern       = `(\d{1,2}):(\d{2})`
	dateRegexPattern       = `(\d{1,2})[./](\d{1,2})[./](\d{4})`
	yearRegexPattern       = `\b(?:19|20)\d{2}\b`
	ordinalRegexPattern    = `(\d+)\.(\s|$)`
	numberRegexPattern     = `\b\d+(?:[.,]\d+)?\b`
	whitespaceRegexPattern = `\s+`
)

// Punctuation normalised before synthesis.
const (
	emDash       = "\u2014"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

var (
	turkishOnes = []string{"", "bir", "iki", "üç", "dört", "beş", "altı", "yedi", "sekiz", "dokuz"}
	turkishTens = []string{"", "on", "yirmi", "otuz", "kırk", "elli", "altmış", "yetmiş", "seksen", "doksan"}

	turkishMonths = []string{
		"", "ocak", "şubat", "mart", "nisan", "mayıs", "haziran",
		"temmuz", "ağustos", "eylül", "ekim", "kasım", "aralık",
	}

	// Ordinal forms of the words a number can end with that do not follow the plain
	// vowel-harmony suffix.
	turkishOrdinalWords = map[string]string{
		"bir": "birinci", "iki": "ikinci", "üç": "üçüncü", "dört": "dördüncü",
		"beş": "beşinci", "altı": "altıncı", "yedi": "yedinci", "sekiz": "sekizinci",
		"dokuz": "dokuzuncu", "on": "onuncu",
	}
)

type scale struct {
	value int64
	name  string
}

var turkishScales = []scale{
	{value: 1_000_000_000_000, name: "trilyon"},
	{value: 1_000_000_000, name: "milyar"},
	{value: 1_000_000, name: "milyon"},
	{value: NumberBaseThousand, name: "bin"},
	{value: NumberBaseHundred, name: "yüz"},
}

type currency struct {
	pattern *regexp.Regexp
	word    string
}

// TurkishNormalizer rewrites numbers, percentages, prices, times, dates, years and ordinals
// into spoken Turkish.
type TurkishNormalizer struct {
	percentPattern    *regexp.Regexp
	currencies        []currency
	timePattern       *regexp.Regexp
	datePattern       *regexp.Regexp
	yearPattern       *regexp.Regexp
	ordinalPattern    *regexp.Regexp
	numberPattern     *regexp.Regexp
	whitespacePattern *regexp.Regexp
	punctuation       *strings.Replacer
}

// NewTurkishNormalizer compiles the patterns once for reuse.
func NewTurkishNormalizer() *TurkishNormalizer {
	return &TurkishNormalizer{
		percentPattern: regexp.MustCompile(percentRegexPattern),
		currencies: []currency{
			{pattern: regexp.MustCompile(liraSignRegexPattern), word: "lira"},
			{pattern: regexp.MustCompile(liraCodeRegexPattern), word: "lira"},
			{pattern: regexp.MustCompile(dollarRegexPattern), word: "dolar"},
			{pattern: regexp.MustCompile(euroRegexPattern), word: "euro"},
			{pattern: regexp.MustCompile(poundRegexPattern), word: "sterlin"},
		},
		timePattern:       regexp.MustCompile(timeRegexPattern),
		datePattern:       regexp.MustCompile(dateRegexPattern),
		yearPattern:       regexp.MustCompile(yearRegexPattern),
		ordinalPattern:    regexp.MustCompile(ordinalRegexPattern),
		numberPattern:     regexp.MustCompile(numberRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		punctuation: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns the spoken form of text.
func (n *TurkishNormalizer) Normalize(text string) string {
	if text == "" {
		return text
	}

	text = n.punctuation.Replace(text)
	text = n.normalizePercentages(text)
	text = n.normalizeCurrency(text)
	text = n.normalizeTimes(text)
	// Dates before years, the year is part of the date.
	text = n.normalizeDates(text)
	text = n.normalizeYears(text)
	text = n.normalizeOrdinals(text)
	text = n.normalizeNumbers(text)

	return strings.TrimSpace(n.whitespacePattern.ReplaceAllString(text, " "))
}

func (n *TurkishNormalizer) normalizePercentages(text string) string {
	return n.percentPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := n.percentPattern.FindStringSubmatch(match)

		return "yüzde " + DecimalToTurkish(groups[1])
	})
}

func (n *TurkishNormalizer) normalizeCurrency(text string) string {
	for _, cur := range n.currencies {
		text = cur.pattern.ReplaceAllStringFunc(text, func(match string) string {
			groups := cur.pattern.FindStringSubmatch(match)

			return DecimalToTurkish(groups[1]) + " " + cur.word
		})
	}

	return text
}

func (n *TurkishNormalizer) normalizeTimes(text string) string {
	return n.timePattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := n.timePattern.FindStringSubmatch(match)
		hour, _ := strconv.ParseInt(groups[1], NumberBaseTen, 64)
		minute, _ := strconv.ParseInt(groups[2], NumberBaseTen, 64)

		if minute == 0 {
			return NumberToTurkish(hour)
		}

		return NumberToTurkish(hour) + " " + NumberToTurkish(minute)
	})
}

func (n *TurkishNormalizer) normalizeDates(text string) string {
	return n.datePattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := n.datePattern.FindStringSubmatch(match)
		day, _ := strconv.ParseInt(groups[1], NumberBaseTen, 64)
		month, _ := strconv.Atoi(groups[2])
		year, _ := strconv.ParseInt(groups[3], NumberBaseTen, 64)

		monthName := strconv.Itoa(month)
		if month >= 1 && month < len(turkishMonths) {
			monthName = turkishMonths[month]
		}

		return fmt.Sprintf("%s %s %s", NumberToTurkish(day), monthName, NumberToTurkish(year))
	})
}

func (n *TurkishNormalizer) normalizeYears(text string) string {
	return n.yearPattern.ReplaceAllStringFunc(text, func(match string) string {
		year, err := strconv.ParseInt(match, NumberBaseTen, 64)
		if err != nil || year < MinSpokenYear || year > MaxSpokenYear {
			return match
		}

		return NumberToTurkish(year)
	})
}

func (n *TurkishNormalizer) normalizeOrdinals(text string) string {
	return n.ordinalPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := n.ordinalPattern.FindStringSubmatch(match)

		num, err := strconv.ParseInt(groups[1], NumberBaseTen, 64)
		if err != nil {
			return match
		}

		return OrdinalToTurkish(num) + groups[2]
	})
}

func (n *TurkishNormalizer) normalizeNumbers(text string) string {
	return n.numberPattern.ReplaceAllStringFunc(text, DecimalToTurkish)
}

// NumberToTurkish spells an integer in Turkish.
func NumberToTurkish(number int64) string {
	if number == 0 {
		return "sıfır"
	}

	if number < 0 {
		return "eksi " + NumberToTurkish(-number)
	}

	var parts []string

	for _, sc := range turkishScales {
		if number < sc.value {
			continue
		}

		count := number / sc.value
		number %= sc.value

		switch {
		case count == 1 && (sc.value == NumberBaseThousand || sc.value == NumberBaseHundred):
			// "bin" and "yüz", never "bir bin".
		case count >= NumberBaseHundred:
			parts = append(parts, NumberToTurkish(count))
		default:
			parts = append(parts, underHundred(count)...)
		}

		parts = append(parts, sc.name)
	}

	parts = append(parts, underHundred(number)...)

	return strings.Join(parts, " ")
}

func underHundred(number int64) []string {
	var parts []string

	if number >= NumberBaseTen {
		parts = append(parts, turkishTens[number/NumberBaseTen])
	}

	if number%NumberBaseTen > 0 {
		parts = append(parts, turkishOnes[number%NumberBaseTen])
	}

	return parts
}

// DecimalToTurkish spells an integer or a decimal using either '.' or ',' as the separator.
// The fractional digits are read one by one. Unparseable input is returned unchanged.
func DecimalToTurkish(number string) string {
	integerPart, fraction, hasFraction := strings.Cut(strings.ReplaceAll(number, ",", "."), ".")

	whole, err := strconv.ParseInt(integerPart, NumberBaseTen, 64)
	if err != nil {
		return number
	}

	if !hasFraction {
		return NumberToTurkish(whole)
	}

	digits := make([]string, 0, len(fraction))

	for _, digit := range fraction {
		if digit < '0' || digit > '9' {
			return number
		}

		if digit == '0' {
			digits = append(digits, "sıfır")

			continue
		}

		digits = append(digits, turkishOnes[digit-'0'])
	}

	return NumberToTurkish(whole) + " virgül " + strings.Join(digits, " ")
}

// OrdinalToTurkish spells the ordinal form of a number ("birinci", "yirminci").
func OrdinalToTurkish(number int64) string {
	words := strings.Fields(NumberToTurkish(number))
	last := words[len(words)-1]

	if ordinal, ok := turkishOrdinalWords[last]; ok {
		words[len(words)-1] = ordinal
	} else {
		words[len(words)-1] = last + ordinalSuffix(last)
	}

	return strings.Join(words, " ")
}

// ordinalSuffix picks -(i)nci with four-way vowel harmony on the last vowel of word.
func ordinalSuffix(word string) string {
	runes := []rune(word)

	var (
		lastVowel  rune
		endsInVowel bool
	)

	for i := len(runes) - 1; i >= 0; i-- {
		if strings.ContainsRune("aeıioöuü", runes[i]) {
			lastVowel = runes[i]
			endsInVowel = i == len(runes)-1

			break
		}
	}

	var suffix string

	switch lastVowel {
	case 'a', 'ı':
		suffix = "ıncı"
	case 'o', 'u':
		suffix = "uncu"
	case 'ö', 'ü':
		suffix = "üncü"
	default:
		suffix = "inci"
	}

	if endsInVowel {
		_, size := utf8.DecodeRuneInString(suffix)

		return suffix[size:]
	}

	return suffix
}
