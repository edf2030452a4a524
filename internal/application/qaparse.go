package application

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// ErrUnparseableResponse indicates model output held no JSON array of
// question/answer objects.
var ErrUnparseableResponse = errors.New("no question/answer array in response")

var trailingComma = regexp.MustCompile(`,\s*([\]}])`)

type rawPair struct {
	Question any `json:"question"`
	Answer   any `json:"answer"`
}

// ParseQAPairs extracts question/answer pairs from model output. It accepts a
// bare JSON array, one wrapped in a Markdown code fence, or one embedded in
// surrounding prose, and tolerates trailing commas. Pairs with an empty
// question or answer are dropped.
func ParseQAPairs(text string) ([]model.QAPair, error) {
	candidate := stripCodeFence(strings.TrimSpace(text))

	raw, err := decodePairs(candidate)
	if err != nil {
		start := strings.Index(candidate, "[")
		end := strings.LastIndex(candidate, "]")
		if start < 0 || end <= start {
			return nil, ErrUnparseableResponse
		}
		fixed := trailingComma.ReplaceAllString(candidate[start:end+1], "$1")
		if raw, err = decodePairs(fixed); err != nil {
			return nil, ErrUnparseableResponse
		}
	}

	pairs := make([]model.QAPair, 0, len(raw))
	for _, r := range raw {
		q := strings.TrimSpace(stringify(r.Question))
		a := strings.TrimSpace(stringify(r.Answer))
		if q == "" || a == "" {
			continue
		}
		pairs = append(pairs, model.QAPair{Question: q, Answer: a})
	}
	return pairs, nil
}

func decodePairs(s string) ([]rawPair, error) {
	var raw []rawPair
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// stripCodeFence returns the body of the first ``` fenced block, dropping an
// optional language tag. Text without a fence is returned unchanged. An
// unterminated fence runs to the end of the text.
func stripCodeFence(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "[{") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
