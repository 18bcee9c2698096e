// Package guardrail decides whether a user message may be forwarded to a
// language model for a set of subjects.
//
// Evaluation is a pure function of the message, the selected subjects and
// the Dictionary the Evaluator was built with. It never fails.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/creastat/chatguard/metrics"
)

// Check names the rule that decided a verdict.
type Check string

const (
	CheckLength   Check = "length"
	CheckPattern  Check = "pattern"
	CheckTopic    Check = "topic"
	CheckSubjects Check = "subjects"
)

const (
	DefaultMaxLength = 2000
	DefaultMinLength = 10
	DefaultMaxRepeat = 20
)

const (
	reasonTooLong    = "A mensagem é muito longa. Limite: %d caracteres. Atual: %d caracteres."
	reasonRepetition = "Mensagem contém padrões suspeitos."
	reasonInjection  = "Mensagem contém padrões não permitidos."
	reasonOffTopic   = "A pergunta parece estar fora do escopo de %s. Faça perguntas relacionadas ao tema escolhido."
	reasonUnrelated  = "A pergunta não parece relacionada a %s. Faça perguntas relacionadas ao tema escolhido."
	reasonTooShort   = "Por favor, seja mais específico em sua pergunta."
	reasonNoSubjects = "nenhum assunto selecionado"
)

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous\s+instructions?`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous\s+instructions?`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*:\s*you`),
}

// SubjectVerdict is the topic decision for one subject.
type SubjectVerdict struct {
	Subject string `json:"subject"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
}

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	// Check is the rule that decided the verdict.
	Check    Check            `json:"check"`
	Subjects []SubjectVerdict `json:"subjects,omitempty"`
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxLength sets the maximum message length in characters.
func WithMaxLength(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxLength = n
		}
	}
}

// WithMinLength sets the length under which a message without any subject
// keyword is considered too vague.
func WithMinLength(n int) Option {
	return func(e *Evaluator) {
		if n >= 0 {
			e.minLength = n
		}
	}
}

// WithMaxRepeat sets how many identical consecutive characters are
// tolerated.
func WithMaxRepeat(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxRepeat = n
		}
	}
}

// WithStrictRelevance rejects every message that contains no keyword of
// the subject, whatever its length.
func WithStrictRelevance() Option {
	return func(e *Evaluator) {
		e.strict = true
	}
}

// WithMetrics records every verdict on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// Evaluator applies the guard rails. It is safe for concurrent use.
type Evaluator struct {
	dict      Dictionary
	maxLength int
	minLength int
	maxRepeat int
	strict    bool
	metrics   *metrics.Metrics
}

// New creates an Evaluator over dict.
func New(dict Dictionary, opts ...Option) *Evaluator {
	e := &Evaluator{
		dict:      dict,
		maxLength: DefaultMaxLength,
		minLength: DefaultMinLength,
		maxRepeat: DefaultMaxRepeat,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dictionary returns the dictionary the evaluator matches against.
func (e *Evaluator) Dictionary() Dictionary {
	return e.dict
}

// Evaluate runs the length and suspicious-pattern checks once, then the
// topic check for each subject. The message is accepted when at least one
// subject accepts it.
func (e *Evaluator) Evaluate(message string, subjects ...string) Verdict {
	v := e.evaluate(message, subjects)
	e.metrics.RecordVerdict(string(v.Check), v.Valid)
	return v
}

func (e *Evaluator) evaluate(message string, subjects []string) Verdict {
	if reason, ok := e.checkLength(message); !ok {
		return Verdict{Reason: reason, Check: CheckLength}
	}
	if reason, ok := e.checkPatterns(message); !ok {
		return Verdict{Reason: reason, Check: CheckPattern}
	}
	if len(subjects) == 0 {
		return Verdict{Reason: reasonNoSubjects, Check: CheckSubjects}
	}

	normalized := Normalize(message)
	verdict := Verdict{Check: CheckTopic, Subjects: make([]SubjectVerdict, 0, len(subjects))}
	reasons := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		sv := e.checkTopic(message, normalized, subject)
		verdict.Subjects = append(verdict.Subjects, sv)
		if sv.Valid {
			verdict.Valid = true
			continue
		}
		reasons = append(reasons, sv.Subject+": "+sv.Reason)
	}
	if !verdict.Valid {
		if len(subjects) == 1 {
			verdict.Reason = verdict.Subjects[0].Reason
		} else {
			verdict.Reason = strings.Join(reasons, "; ")
		}
	}
	return verdict
}

func (e *Evaluator) checkLength(message string) (string, bool) {
	n := utf8.RuneCountInString(message)
	if n > e.maxLength {
		return fmt.Sprintf(reasonTooLong, e.maxLength, n), false
	}
	return "", true
}

func (e *Evaluator) checkPatterns(message string) (string, bool) {
	if hasRepeatedRun(message, e.maxRepeat) {
		return reasonRepetition, false
	}
	for _, p := range injectionPatterns {
		if p.MatchString(message) {
			return reasonInjection, false
		}
	}
	return "", true
}

func (e *Evaluator) checkTopic(message, normalized, subject string) SubjectVerdict {
	sv := SubjectVerdict{Subject: subject}

	if _, hit := e.dict.OffTopic().Match(normalized); hit {
		sv.Reason = fmt.Sprintf(reasonOffTopic, subject)
		return sv
	}

	_, relevant := e.dict.Subject(subject).Match(normalized)
	if !relevant {
		if utf8.RuneCountInString(strings.TrimSpace(message)) < e.minLength {
			sv.Reason = reasonTooShort
			return sv
		}
		if e.strict {
			sv.Reason = fmt.Sprintf(reasonUnrelated, subject)
			return sv
		}
	}

	sv.Valid = true
	return sv
}

// hasRepeatedRun reports whether s contains more than limit identical
// consecutive characters. Line terminators break a run.
func hasRepeatedRun(s string, limit int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		switch r {
		case '\n', '\r', '\u2028', '\u2029':
			run = 0
			continue
		}
		if run > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		prev = r
		if run > limit {
			return true
		}
	}
	return false
}
