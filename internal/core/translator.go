package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"BobbyCloud/internal/parser"
)

// Policy selects how a batch reacts to malformed records.
type Policy int

const (
	// PolicyLenient skips malformed records and forwards what it can.
	PolicyLenient Policy = iota
	// PolicyStrict rejects the whole batch on the first malformed record.
	PolicyStrict
)

// ParsePolicy maps a config value to a Policy. The empty string selects PolicyStrict.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return PolicyStrict, nil
	case "lenient":
		return PolicyLenient, nil
	}
	return PolicyStrict, fmt.Errorf("unknown policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "lenient"
}

// ErrEmptyBatch is returned when a batch produced no lines.
var ErrEmptyBatch = errors.New("batch produced no lines")

// Result is the outcome of translating one batch.
type Result struct {
	Payload    string
	Translated int
	Lines      int
	// Skipped holds records rejected under the lenient policy.
	Skipped []error
	// Dropped holds optional slots discarded from otherwise valid records.
	Dropped []error
}

// Translator decodes a batch of records and renders it as line protocol.
type Translator struct {
	policy  Policy
	decoder *parser.RecordDecoder
	encoder *parser.LineProtocolEncoder
}

// NewTranslator creates a translator applying policy.
func NewTranslator(policy Policy) *Translator {
	return &Translator{
		policy:  policy,
		decoder: parser.NewRecordDecoder(policy == PolicyStrict),
		encoder: parser.NewLineProtocolEncoder(),
	}
}

// Policy returns the policy the translator applies.
func (t *Translator) Policy() Policy { return t.policy }

// Translate renders records for clientID. Under the strict policy the first
// failing record aborts the batch with its *parser.RecordError. A batch that
// yields no lines returns ErrEmptyBatch along with the partial Result.
func (t *Translator) Translate(clientID string, records []json.RawMessage) (Result, error) {
	var res Result
	var sb strings.Builder
	for i, raw := range records {
		rec, dropped, err := t.decoder.Decode(raw, i)
		if err != nil {
			if t.policy == PolicyStrict {
				return Result{}, err
			}
			res.Skipped = append(res.Skipped, err)
			continue
		}
		for _, d := range dropped {
			res.Dropped = append(res.Dropped, d)
		}
		t.encoder.AppendRecord(&sb, rec, clientID)
		res.Translated++
	}

	res.Payload = sb.String()
	if res.Payload == "" {
		return res, ErrEmptyBatch
	}
	res.Lines = strings.Count(res.Payload, "\n")
	return res, nil
}
