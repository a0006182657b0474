package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/fraudguard/internal/domain"
)

// MessageKey names one translatable string.
type MessageKey string

const (
	KeyStatusFraudulent MessageKey = "status.fraudulent"
	KeyStatusLegitimate MessageKey = "status.legitimate"
	KeyIntro            MessageKey = "intro"
	KeyReasons          MessageKey = "reasons"
	KeySeparator        MessageKey = "separator"

	KeyHighDeviation   MessageKey = "reason.high_deviation"
	KeyDistantLocation MessageKey = "reason.distant_location"
	KeyNewMerchant     MessageKey = "reason.new_merchant"
	KeyUnusualTime     MessageKey = "reason.unusual_time"
	KeyHighFrequency   MessageKey = "reason.high_frequency"
	KeyNormal          MessageKey = "reason.normal"
)

// requiredKeys lists every key a locale must define and the placeholders
// its template must contain.
var requiredKeys = map[MessageKey][]string{
	KeyStatusFraudulent: nil,
	KeyStatusLegitimate: nil,
	KeyIntro:            {"{status}", "{score}"},
	KeyReasons:          {"{reasons}"},
	KeySeparator:        nil,
	KeyHighDeviation:    nil,
	KeyDistantLocation:  nil,
	KeyNewMerchant:      nil,
	KeyUnusualTime:      nil,
	KeyHighFrequency:    nil,
	KeyNormal:           nil,
}

// Catalog maps (locale, key) to a template string.
type Catalog map[domain.Language]map[MessageKey]string

// DefaultCatalog returns the built-in English, Hindi and Marathi strings.
func DefaultCatalog() Catalog {
	return Catalog{
		domain.LanguageEnglish: {
			KeyStatusFraudulent: "fraudulent",
			KeyStatusLegitimate: "legitimate",
			KeyIntro:            "This transaction was classified as {status} with a risk score of {score}%.",
			KeyReasons:          "The decision was based on: {reasons}.",
			KeySeparator:        ", ",
			KeyHighDeviation:    "unusually high transaction amount",
			KeyDistantLocation:  "transaction from a distant location",
			KeyNewMerchant:      "new or unfamiliar merchant",
			KeyUnusualTime:      "unusual transaction time",
			KeyHighFrequency:    "abnormally high transaction frequency",
			KeyNormal:           "normal spending behavior",
		},
		domain.LanguageHindi: {
			KeyStatusFraudulent: "धोखाधड़ी",
			KeyStatusLegitimate: "वैध",
			KeyIntro:            "इस लेनदेन को {status} के रूप में वर्गीकृत किया गया है, जोखिम स्कोर {score}% है।",
			KeyReasons:          "यह निर्णय इन कारणों पर आधारित है: {reasons}।",
			KeySeparator:        ", ",
			KeyHighDeviation:    "असामान्य रूप से अधिक लेनदेन राशि",
			KeyDistantLocation:  "दूर के स्थान से लेनदेन",
			KeyNewMerchant:      "नया या अपरिचित व्यापारी",
			KeyUnusualTime:      "असामान्य लेनदेन समय",
			KeyHighFrequency:    "असामान्य रूप से अधिक लेनदेन आवृत्ति",
			KeyNormal:           "सामान्य खर्च व्यवहार",
		},
		domain.LanguageMarathi: {
			KeyStatusFraudulent: "फसवणूक",
			KeyStatusLegitimate: "वैध",
			KeyIntro:            "हा व्यवहार {status} म्हणून वर्गीकृत केला गेला आहे, जोखीम गुण {score}% आहे.",
			KeyReasons:          "हा निर्णय खालील कारणांवर आधारित आहे: {reasons}.",
			KeySeparator:        ", ",
			KeyHighDeviation:    "असामान्यपणे जास्त व्यवहार रक्कम",
			KeyDistantLocation:  "दूरच्या ठिकाणाहून व्यवहार",
			KeyNewMerchant:      "नवीन किंवा अपरिचित व्यापारी",
			KeyUnusualTime:      "असामान्य व्यवहार वेळ",
			KeyHighFrequency:    "असामान्यपणे जास्त व्यवहार वारंवारता",
			KeyNormal:           "सामान्य खर्च वर्तन",
		},
	}
}

// Validate checks every supported locale defines every key with the
// placeholders it needs.
func (c Catalog) Validate() error {
	var problems []string

	for _, lang := range domain.SupportedLanguages {
		messages, ok := c[lang]
		if !ok {
			problems = append(problems, fmt.Sprintf("locale %s missing", lang))
			continue
		}
		for key, placeholders := range requiredKeys {
			text, ok := messages[key]
			if !ok || text == "" {
				problems = append(problems, fmt.Sprintf("%s: %s missing", lang, key))
				continue
			}
			for _, ph := range placeholders {
				if !strings.Contains(text, ph) {
					problems = append(problems, fmt.Sprintf("%s: %s lacks %s", lang, key, ph))
				}
			}
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid message catalog: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Lookup returns the message for lang, resolving unsupported languages to
// English.
func (c Catalog) Lookup(lang domain.Language, key MessageKey) string {
	if messages, ok := c[domain.NormalizeLanguage(string(lang))]; ok {
		if text, ok := messages[key]; ok {
			return text
		}
	}
	return c[domain.LanguageEnglish][key]
}
