package logging

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/reposearch/internal/config"
)

const redacted = "[REDACTED]"

// Secret logs a config.Secret as its length only.
func Secret(key string, val config.Secret) zap.Field {
	return RedactedString(key, val.Value())
}

// RedactedString logs val as a redaction marker carrying its length.
func RedactedString(key, val string) zap.Field {
	if val == "" {
		return zap.String(key, "")
	}
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// sensitiveQuery lists query parameters dropped by URL.
var sensitiveQuery = []string{"token", "access_token", "password", "auth"}

// URL logs raw with userinfo and credential query parameters masked. Searcher,
// NATS and GitHub endpoints may carry credentials in either place.
func URL(key, raw string) zap.Field {
	u, err := url.Parse(raw)
	if err != nil {
		return RedactedString(key, raw)
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for _, name := range sensitiveQuery {
			if q.Has(name) {
				q.Set(name, redacted)
			}
		}
		u.RawQuery = q.Encode()
	}
	return zap.String(key, u.String())
}

// RedactingEncoder masks fields by name and string values by pattern before
// they reach the wrapped encoder.
type RedactingEncoder struct {
	zapcore.Encoder
	fields   map[string]struct{}
	patterns []*regexp.Regexp
}

// NewRedactingEncoder wraps base with the rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	patterns, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]struct{}, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = struct{}{}
	}
	return &RedactingEncoder{Encoder: base, fields: fields, patterns: patterns}, nil
}

func (e *RedactingEncoder) sensitiveKey(key string) bool {
	_, ok := e.fields[strings.ToLower(key)]
	return ok
}

// scrub replaces every pattern match in val.
func (e *RedactingEncoder) scrub(val string) string {
	for _, re := range e.patterns {
		val = re.ReplaceAllString(val, redacted)
	}
	return val
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitiveKey(key) && val != "" && !strings.HasPrefix(val, "[REDACTED") {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddString(key, e.scrub(val))
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddByteString(key, []byte(e.scrub(string(val))))
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected masks the whole value when the key is sensitive. Nested
// values are not inspected.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// EncodeEntry routes per-entry fields and the message through the
// redaction rules before encoding.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	clone := e.Clone().(*RedactingEncoder)
	for _, f := range fields {
		f.AddTo(clone)
	}
	ent.Message = clone.scrub(ent.Message)
	return clone.Encoder.EncodeEntry(ent, nil)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:  e.Encoder.Clone(),
		fields:   e.fields,
		patterns: e.patterns,
	}
}
