package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat int

const (
	formatKV logFormat = iota
	formatJSON
)

const timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

// headKeys lead every line in this order; the rest keep call-site order.
var headKeys = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "update_id", "chat_id", "user_id", "handler",
}

// outcomes lists the accepted outcome values; anything else is dropped.
var outcomes = []string{"ok", "fail", "cancelled", "rate_limited", "denied", "dropped"}

type lineWriter interface {
	Write(line []byte) error
}

// handler renders one line per record with event metadata taken from the
// context Meta.
type handler struct {
	level  slog.Leveler
	out    lineWriter
	format logFormat
	attrs  []slog.Attr
	group  string
}

type field struct {
	key string
	val any
}

type record struct {
	fields []field
}

func (r *record) find(key string) int {
	return slices.IndexFunc(r.fields, func(f field) bool { return f.key == key })
}

func (r *record) set(key string, val any) {
	if i := r.find(key); i >= 0 {
		r.fields[i].val = val
		return
	}
	r.fields = append(r.fields, field{key: key, val: val})
}

// fill sets key only when the record does not carry it yet.
func (r *record) fill(key string, val any) {
	if r.find(key) < 0 {
		r.fields = append(r.fields, field{key: key, val: val})
	}
}

func (r *record) str(key string) string {
	if i := r.find(key); i >= 0 {
		s, _ := r.fields[i].val.(string)
		return s
	}
	return ""
}

func (r *record) drop(key string) {
	if i := r.find(key); i >= 0 {
		r.fields = slices.Delete(r.fields, i, i+1)
	}
}

func (r *record) ordered() []field {
	out := make([]field, 0, len(r.fields))
	for _, key := range headKeys {
		if i := r.find(key); i >= 0 {
			out = append(out, r.fields[i])
		}
	}
	for _, f := range r.fields {
		if !slices.Contains(headKeys, f.key) {
			out = append(out, f)
		}
	}
	return out
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	rec := &record{fields: make([]field, 0, 24)}
	ts := r.Time.UTC()
	rec.set("ts", ts.Truncate(time.Millisecond).Format(timeFormatMillis))
	rec.set("level", r.Level.String())
	for _, a := range h.attrs {
		collect(rec, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(rec, h.group, a)
		return true
	})
	h.applyMeta(rec, MetaFrom(ctx))

	if rec.str("event") == "" {
		event := r.Message
		if event == "" {
			event = "unknown"
		}
		rec.set("event", event)
	}
	rec.fill("component", CompApp)
	if s := rec.str("status"); s != "" {
		rec.set("status", strings.ToLower(s))
	}
	if o := rec.str("outcome"); o != "" && !slices.Contains(outcomes, strings.ToLower(o)) {
		rec.drop("outcome")
	}
	if h.format == formatJSON {
		rec.set("ts_unix_nano", ts.UnixNano())
	}
	return h.out.Write(h.encode(rec.ordered()))
}

// applyMeta adds the update metadata. Attributes set at the call site win,
// so a log line about a joined member keeps that member's user_id.
func (h *handler) applyMeta(rec *record, m Meta) {
	if rid := rec.str("rid"); rid != "" {
		m.RID = rid
	}
	for _, a := range m.Attrs() {
		if a.Key != "rid" {
			rec.fill(a.Key, a.Value.Any())
			continue
		}
		compact := CompactRID(m.RID)
		rec.set("rid", compact)
		if h.format == formatJSON && compact != m.RID {
			rec.fill("rid_full", m.RID)
		}
	}
	if m.Handler != "" {
		rec.fill("handler", m.Handler)
	}
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.group != "" {
		attrs = []slog.Attr{{Key: h.group, Value: slog.GroupValue(attrs...)}}
	}
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), attrs...)
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

func collect(rec *record, prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			collect(rec, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if key, val, ok := plainValue(key, v); ok {
		rec.set(key, val)
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// plainValue converts v to a JSON friendly value. Durations become whole
// milliseconds under a key ending in _ms; empty strings are skipped.
func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		s := strings.TrimSpace(v.String())
		return key, s, s != ""
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindAny:
		switch x := v.Any().(type) {
		case nil:
			return key, nil, false
		case error:
			return key, x.Error(), true
		case time.Duration:
			return msKey(key), RoundMS(x).Milliseconds(), true
		case fmt.Stringer:
			s := x.String()
			return key, s, s != ""
		default:
			return key, fmt.Sprint(x), true
		}
	}
	return key, v.Any(), true
}

func msKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

func (h *handler) encode(fields []field) []byte {
	var b bytes.Buffer
	if h.format == formatJSON {
		b.WriteByte('{')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			key, _ := json.Marshal(f.key)
			b.Write(key)
			b.WriteByte(':')
			val, err := json.Marshal(f.val)
			if err != nil {
				val, _ = json.Marshal(fmt.Sprint(f.val))
			}
			b.Write(val)
		}
		b.WriteString("}\n")
		return b.Bytes()
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(kvValue(f.val))
	}
	b.WriteByte('\n')
	return b.Bytes()
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
