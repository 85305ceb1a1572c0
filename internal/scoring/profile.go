package scoring

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fmuoria/ranksense/internal/models"
)

const (
	defaultRole     = "Candidate"
	unknownLocation = "Unknown"
	maxKeywords     = 10
)

var (
	emailRe       = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phoneRe       = regexp.MustCompile(`\+?\d[\d\s-]{8,13}\d`)
	institutionRe = regexp.MustCompile(`(?i)(IIT\s+\w+|IIM\s+\w+|BITS\s+\w+|NIT\s+\w+|VIT\s+\w+|\bMIT\b|Stanford|Harvard|[a-z]+ University|[a-z]+ College)`)
	yearsRe       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:years?|yrs?)\b`)
	jobMentionRe  = regexp.MustCompile(`(?i)(internship|full.?time|employed|worked at|joining)`)
)

var cities = []string{
	"Mumbai", "Delhi", "Bangalore", "Hyderabad", "Chennai", "Pune",
	"Kolkata", "Ahmedabad", "Jaipur", "New York", "San Francisco",
	"London", "Singapore", "Dubai", "Nairobi", "Remote",
}

var techKeywords = []string{
	"Python", "Java", "JavaScript", "TypeScript", "C++", "C#", "Go", "Rust",
	"React", "Vue", "Angular", "Node.js", "FastAPI", "Django", "Flask",
	"TensorFlow", "PyTorch", "scikit-learn", "SBERT", "LayoutLMv3", "BERT",
	"Hugging Face", "spaCy", "NLTK", "OpenCV", "Pandas", "NumPy",
	"SQL", "PostgreSQL", "MongoDB", "Redis", "MySQL",
	"Docker", "Kubernetes", "AWS", "GCP", "Azure",
	"Machine Learning", "Deep Learning", "NLP", "Computer Vision",
	"REST APIs", "GraphQL", "Microservices", "MLOps", "Tableau", "Power BI",
}

// ExtractProfile pulls contact and background details out of resume text.
// AvatarColor is left empty; it depends on the candidate's batch position.
func ExtractProfile(text, filename string) models.Profile {
	name := ExtractName(text, filename)
	return models.Profile{
		Name:       name,
		Role:       defaultRole,
		Email:      emailRe.FindString(text),
		Phone:      strings.TrimSpace(phoneRe.FindString(text)),
		Education:  ExtractEducation(text),
		Experience: ExtractExperience(text),
		Location:   ExtractLocation(text),
		Keywords:   ExtractKeywords(text),
		Avatar:     Initials(name),
	}
}

// ExtractName returns the first short line that looks like a person's name,
// falling back to the file name.
func ExtractName(text, filename string) string {
	checked := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if checked++; checked > 5 {
			break
		}
		words := len(strings.Fields(line))
		if words >= 2 && words <= 4 && !strings.ContainsAny(line, "@.:/") {
			return titleCase(line)
		}
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return titleCase(strings.Join(strings.Fields(base), " "))
}

// ExtractEducation returns the first recognised institution.
func ExtractEducation(text string) string {
	if m := institutionRe.FindString(text); m != "" {
		return m
	}
	return "University"
}

// ExtractExperience summarises years of experience, e.g. "5 yrs".
func ExtractExperience(text string) string {
	if m := yearsRe.FindStringSubmatch(text); m != nil {
		suffix := ""
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 1 {
			suffix = "s"
		}
		return fmt.Sprintf("%s yr%s", m[1], suffix)
	}

	switch n := len(jobMentionRe.FindAllStringIndex(text, -1)); {
	case n >= 3:
		return "3+ yrs"
	case n == 2:
		return "2 yrs"
	default:
		return "< 1 yr"
	}
}

// ExtractLocation returns the first known city mentioned.
func ExtractLocation(text string) string {
	lower := strings.ToLower(text)
	for _, city := range cities {
		if strings.Contains(lower, strings.ToLower(city)) {
			return city
		}
	}
	return unknownLocation
}

// ExtractKeywords returns up to ten technology keywords in catalogue order.
func ExtractKeywords(text string) []string {
	lower := strings.ToLower(text)
	found := make([]string, 0, maxKeywords)
	for _, kw := range techKeywords {
		if containsTerm(lower, strings.ToLower(kw)) {
			found = append(found, kw)
			if len(found) == maxKeywords {
				break
			}
		}
	}
	return found
}

// containsTerm matches term in text only where it is not part of a longer word.
func containsTerm(text, term string) bool {
	for from := 0; ; {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		if !wordByteAt(text, start-1) && !wordByteAt(text, end) {
			return true
		}
		from = start + 1
	}
}

func wordByteAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	r := rune(s[i])
	return r < 0x80 && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// titleCase builds a fresh Caser per call; Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// Initials returns up to two upper-case initials, or "??".
func Initials(name string) string {
	var sb strings.Builder
	for i, w := range strings.Fields(name) {
		if i == 2 {
			break
		}
		r := []rune(w)[0]
		sb.WriteRune(unicode.ToUpper(r))
	}
	if sb.Len() == 0 {
		return "??"
	}
	return sb.String()
}
